package models

import "time"

type JobType string

const (
	JobRunOnce      JobType = "run_once"
	JobRunSelection JobType = "run_selection"
)

type JobStatus string

const (
	JobRunning     JobStatus = "running"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
	JobInterrupted JobStatus = "interrupted"
)

// Job tracks one manually triggered asynchronous task.
type Job struct {
	ID         string     `json:"job_id"`
	Type       JobType    `json:"type"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	Stage      string     `json:"stage"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Message    string     `json:"message"`
}

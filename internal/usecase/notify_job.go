package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TradeDesk/pkg/logger"
	"TradeDesk/pkg/queue"
)

// NotifyType is the queue message type of desk notifications.
const NotifyType = "desk.notify"

// Notification is one fill or job message for the operator.
type Notification struct {
	Kind string    `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Sender delivers rendered text to the operator.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Enqueuer is the producer side of the notification queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload any) error
}

// QueueNotifier hands notifications to the Redis queue so a slow chat API
// never blocks a stage.
type QueueNotifier struct {
	q   Enqueuer
	now func() time.Time
}

func NewQueueNotifier(q Enqueuer) *QueueNotifier {
	return &QueueNotifier{q: q, now: time.Now}
}

func (n *QueueNotifier) Notify(ctx context.Context, kind, text string) error {
	return n.q.Enqueue(ctx, NotifyType, Notification{Kind: kind, Text: text, At: n.now().UTC()})
}

// DirectNotifier sends inline. Used when no queue is configured.
type DirectNotifier struct {
	sender Sender
}

func NewDirectNotifier(s Sender) *DirectNotifier { return &DirectNotifier{sender: s} }

func (n *DirectNotifier) Notify(ctx context.Context, kind, text string) error {
	return n.sender.Send(ctx, render(Notification{Kind: kind, Text: text}))
}

// NotifyJob is the queue worker that delivers notifications.
type NotifyJob struct {
	sender Sender
	lgr    *logger.Logger
}

func NewNotifyJob(s Sender, lgr *logger.Logger) *NotifyJob {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &NotifyJob{sender: s, lgr: lgr}
}

func (j *NotifyJob) Type() string { return NotifyType }

func (j *NotifyJob) Handle(ctx context.Context, payload json.RawMessage) error {
	n, err := queue.Decode[Notification](payload)
	if err != nil {
		j.lgr.Warn("notification dropped", logger.Error(err))
		return nil
	}
	if err := j.sender.Send(ctx, render(n)); err != nil {
		return fmt.Errorf("send %s notification: %w", n.Kind, err)
	}
	return nil
}

func render(n Notification) string {
	switch n.Kind {
	case "trade":
		return "Fill: " + n.Text
	case "job":
		return "Job: " + n.Text
	default:
		return n.Text
	}
}

var _ queue.Job = (*NotifyJob)(nil)

package queue

import (
	"context"
	"encoding/json"
)

// Job handles every queued message of one type.
type Job interface {
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

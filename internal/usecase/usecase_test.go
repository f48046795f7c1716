package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"TradeDesk/internal/domain/models"
	"TradeDesk/internal/scheduler"
	"TradeDesk/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	got []models.Evidence
	err error
}

func (f *fakeSink) SubmitEvidence(_ context.Context, ev models.Evidence) (models.Evidence, error) {
	if f.err != nil {
		return models.Evidence{}, f.err
	}
	f.got = append(f.got, ev)
	return ev, nil
}

func TestEvidenceConsumerMapsMessage(t *testing.T) {
	sink := &fakeSink{}
	h := NewEvidenceConsumer("desk.evidence", sink, metrics.Nop{}, nil)
	assert.Equal(t, "desk.evidence", h.Topic())

	msg := `{"symbol":"aapl","content":"supplier checks strong","reliability":0.8,"submitted_at":1760000000000}`
	require.NoError(t, h.Handle(context.Background(), []byte(msg)))
	require.Len(t, sink.got, 1)
	ev := sink.got[0]
	assert.Equal(t, "aapl", ev.Symbol)
	assert.False(t, ev.Broadcast)
	assert.Equal(t, "kafka", ev.Source)
	assert.Equal(t, 0.8, ev.Reliability)
	assert.Equal(t, time.Unix(1760000000, 0).UTC(), ev.SubmittedAt)

	require.NoError(t, h.Handle(context.Background(), []byte(`{"content":"rates note"}`)))
	assert.True(t, sink.got[1].Broadcast)
}

func TestEvidenceConsumerAcksPoisonMessages(t *testing.T) {
	sink := &fakeSink{}
	h := NewEvidenceConsumer("t", sink, metrics.Nop{}, nil)
	assert.NoError(t, h.Handle(context.Background(), []byte(`not json`)))

	sink.err = fmt.Errorf("%w: %q", scheduler.ErrInvalidSymbol, "??")
	assert.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"??","content":"x"}`)))

	sink.err = errors.New("transient")
	assert.Error(t, h.Handle(context.Background(), []byte(`{"symbol":"MSFT","content":"x"}`)))
}

type fakeEnqueuer struct {
	msgType string
	payload any
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, msgType string, payload any) error {
	f.msgType, f.payload = msgType, payload
	return nil
}

type fakeSender struct {
	texts []string
	err   error
}

func (f *fakeSender) Send(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func TestQueueNotifierRoundTrip(t *testing.T) {
	q := &fakeEnqueuer{}
	n := NewQueueNotifier(q)
	require.NoError(t, n.Notify(context.Background(), "trade", "BUY 10 AAPL @ 190.00"))
	assert.Equal(t, NotifyType, q.msgType)

	raw, err := json.Marshal(q.payload)
	require.NoError(t, err)

	s := &fakeSender{}
	job := NewNotifyJob(s, nil)
	assert.Equal(t, NotifyType, job.Type())
	require.NoError(t, job.Handle(context.Background(), raw))
	assert.Equal(t, []string{"Fill: BUY 10 AAPL @ 190.00"}, s.texts)
}

func TestNotifyJobErrors(t *testing.T) {
	s := &fakeSender{err: errors.New("chat down")}
	job := NewNotifyJob(s, nil)
	assert.NoError(t, job.Handle(context.Background(), nil), "undecodable payloads are dropped")
	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`{"kind":"job","text":"run_once completed"}`)))
}

func TestDirectNotifier(t *testing.T) {
	s := &fakeSender{}
	require.NoError(t, NewDirectNotifier(s).Notify(context.Background(), "job", "selection completed"))
	assert.Equal(t, []string{"Job: selection completed"}, s.texts)
}

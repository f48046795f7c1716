package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"TradeDesk/internal/domain/models"
	domrepo "TradeDesk/internal/domain/repository"
	"TradeDesk/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSnapshotStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "desk.json")
	s, err := NewFileSnapshotStore(path)
	require.NoError(t, err)

	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, domrepo.ErrSnapshotNotFound)

	require.NoError(t, s.Save(ctx, []byte(`{"version":2}`)))
	require.NoError(t, s.Save(ctx, []byte(`{"version":2,"saved_at":"x"}`)))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":2,"saved_at":"x"}`, string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are renamed away")
}

func TestFileSnapshotStoreEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desk.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	s, err := NewFileSnapshotStore(path)
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	assert.ErrorIs(t, err, domrepo.ErrSnapshotNotFound)
}

func TestFileSnapshotStoreCancelled(t *testing.T) {
	s, err := NewFileSnapshotStore(filepath.Join(t.TempDir(), "desk.json"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Save(ctx, []byte("{}")))
}

func TestRedisSnapshotStoreLease(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	first := NewRedisSnapshotStore(c, "desk:snap", time.Minute, nil)
	second := NewRedisSnapshotStore(c, "desk:snap", time.Minute, nil)

	_, err := first.Load(ctx)
	assert.ErrorIs(t, err, domrepo.ErrSnapshotNotFound)

	require.NoError(t, first.Save(ctx, []byte(`{"version":2}`)))
	assert.ErrorIs(t, second.Save(ctx, []byte(`{}`)), ErrLeaseHeld)

	got, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"version":2}`, string(got))

	require.NoError(t, first.Close())
	require.NoError(t, second.Save(ctx, []byte(`{"version":2,"n":1}`)))
	got, err = first.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"version":2,"n":1}`, string(got))
}

type recordedMessage struct {
	topic string
	key   string
	value any
}

type fakeProducer struct {
	msgs   []recordedMessage
	closed bool
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value any) error {
	f.msgs = append(f.msgs, recordedMessage{topic: topic, key: string(key), value: value})
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaEventPublisherKeys(t *testing.T) {
	p := &fakeProducer{}
	pub := NewKafkaEventPublisher(p, "desk.events")
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, models.Event{Type: models.EventTradeFilled, Symbol: "AAPL"}))
	require.NoError(t, pub.Publish(ctx, models.Event{Type: models.EventEquitySnapshot}))

	require.Len(t, p.msgs, 2)
	assert.Equal(t, "desk.events", p.msgs[0].topic)
	assert.Equal(t, "AAPL", p.msgs[0].key)
	assert.Equal(t, models.EventEquitySnapshot, p.msgs[1].key)

	b, err := json.Marshal(p.msgs[0].value)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"trade.filled"`)

	require.NoError(t, pub.Close())
	assert.True(t, p.closed)
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"TradeDesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is a list-backed work queue. Failed messages wait in a sorted
// set until their retry time and land in a dead letter list after
// RetryLimit attempts.
type RedisQueue struct {
	lgr    *logger.Logger
	cfg    Config
	client *redis.Client

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRedisQueue(lgr *logger.Logger, cfg Config, client *redis.Client) *RedisQueue {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "tradedesk:queue"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 15 * time.Second
	}
	return &RedisQueue{lgr: lgr, cfg: cfg, client: client, jobs: make(map[string]Job)}
}

// Register binds a job to its message type. Call before Start.
func (q *RedisQueue) Register(jobs ...Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range jobs {
		if _, ok := q.jobs[j.Type()]; ok {
			q.lgr.Warn("queue job already registered", logger.String("type", j.Type()))
			continue
		}
		q.jobs[j.Type()] = j
	}
}

// Start pings Redis and launches the workers and the retry mover.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}
	pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
	defer pcancel()
	if err := q.client.Ping(pctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(wctx)
	}
	q.wg.Add(1)
	go q.retryLoop(wctx)

	q.lgr.Info("redis queue started",
		logger.String("prefix", q.cfg.KeyPrefix),
		logger.Int("workers", q.cfg.Workers),
		logger.Int("jobs", len(q.jobs)))
	return nil
}

func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Enqueue pushes one message for the job registered under msgType.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key("messages"), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (q *RedisQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for ctx.Err() == nil {
		res, err := q.client.BRPop(ctx, time.Second, q.key("messages")).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.lgr.Warn("queue pop failed", logger.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			q.lgr.Error("queue message undecodable", logger.Error(err))
			continue
		}
		q.process(ctx, msg)
	}
}

func (q *RedisQueue) process(ctx context.Context, msg Message) {
	q.mu.RLock()
	job := q.jobs[msg.Type]
	q.mu.RUnlock()
	if job == nil {
		q.lgr.Warn("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		q.push(ctx, q.key("dlq"), msg)
		return
	}

	err := job.Handle(ctx, msg.Payload)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	msg.Attempts++
	if msg.Attempts > q.cfg.RetryLimit {
		q.lgr.Error("queue message exhausted retries",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID),
			logger.Error(err))
		q.push(ctx, q.key("dlq"), msg)
		return
	}
	q.lgr.Warn("queue message failed, retrying",
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts),
		logger.Error(err))
	data, _ := json.Marshal(msg)
	at := time.Now().Add(q.cfg.RetryDelay)
	if zerr := q.client.ZAdd(ctx, q.key("retry"), redis.Z{Score: float64(at.Unix()), Member: data}).Err(); zerr != nil {
		q.lgr.Error("queue retry schedule failed", logger.Error(zerr))
	}
}

func (q *RedisQueue) push(ctx context.Context, key string, msg Message) {
	data, _ := json.Marshal(msg)
	if err := q.client.LPush(ctx, key, data).Err(); err != nil {
		q.lgr.Error("queue push failed", logger.String("key", key), logger.Error(err))
	}
}

func (q *RedisQueue) retryLoop(ctx context.Context) {
	defer q.wg.Done()
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			q.moveDue(ctx)
		}
	}
}

func (q *RedisQueue) moveDue(ctx context.Context) {
	due, err := q.client.ZRangeByScore(ctx, q.key("retry"), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.lgr.Warn("queue retry scan failed", logger.Error(err))
		}
		return
	}
	for _, m := range due {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.key("retry"), m)
		pipe.LPush(ctx, q.key("messages"), m)
		if _, err := pipe.Exec(ctx); err != nil {
			q.lgr.Warn("queue retry move failed", logger.Error(err))
			return
		}
	}
}

func (q *RedisQueue) key(suffix string) string {
	return q.cfg.KeyPrefix + ":" + suffix
}

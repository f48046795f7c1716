package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"TradeDesk/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

var consumerHandled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tradedesk_kafka_consumed_total",
		Help: "Messages handled from Kafka by result",
	},
	[]string{"topic", "result"},
)

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics in a consumer group and hands the
// messages to a worker pool. Offsets commit after the handler succeeds or
// the message lands in the DLQ.
type Consumer struct {
	cfg      *consumerConfig
	lgr      *logger.Logger
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	dlq      *kafka.Writer
	msgs     chan kafka.Message

	stop     chan struct{}
	stopOnce sync.Once
	readWG   sync.WaitGroup
	workWG   sync.WaitGroup
}

func NewConsumer(lgr *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &consumerConfig{
		groupID:    "tradedesk",
		workers:    1,
		bufferSize: 16,
		retryMax:   3,
		backoffMin: 100 * time.Millisecond,
		backoffMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers are required")
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}

	c := &Consumer{
		cfg:      cfg,
		lgr:      lgr,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		msgs:     make(chan kafka.Message, cfg.bufferSize),
		stop:     make(chan struct{}),
	}
	if cfg.dlqTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// RegisterHandler must be called before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.lgr.Warn("kafka handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka: no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.brokers,
			Topic:    topic,
			GroupID:  c.cfg.groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}
	for i := 0; i < c.cfg.workers; i++ {
		c.workWG.Add(1)
		go c.work()
	}
	for topic, r := range c.readers {
		c.readWG.Add(1)
		go c.read(topic, r)
	}
	c.lgr.Info("kafka consumer started",
		logger.String("group", c.cfg.groupID),
		logger.Int("topics", len(c.readers)),
		logger.Int("workers", c.cfg.workers))
	return nil
}

// Stop drains the workers and closes the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		done := make(chan struct{})
		go func() {
			c.readWG.Wait()
			close(c.msgs)
			c.workWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.lgr.Warn("kafka reader close", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
	})
	return err
}

func (c *Consumer) read(topic string, r *kafka.Reader) {
	defer c.readWG.Done()
	for {
		select {
		case <-c.stop:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := r.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.lgr.Warn("kafka fetch failed", logger.String("topic", topic), logger.Error(err))
			}
			continue
		}
		select {
		case c.msgs <- msg:
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) work() {
	defer c.workWG.Done()
	for msg := range c.msgs {
		c.handle(msg)
	}
}

func (c *Consumer) handle(msg kafka.Message) {
	h := c.handlers[msg.Topic]
	if h == nil {
		return
	}
	var err error
	for attempt := 1; ; attempt++ {
		err = c.safeHandle(h, msg.Value)
		if err == nil || attempt > c.cfg.retryMax {
			break
		}
		select {
		case <-time.After(backoff(c.cfg.backoffMin, c.cfg.backoffMax, attempt)):
		case <-c.stop:
			return
		}
	}

	result := "ok"
	if err != nil {
		result = "error"
		c.lgr.Error("kafka message dropped",
			logger.String("topic", msg.Topic),
			logger.Int64("offset", msg.Offset),
			logger.Error(err))
		if c.dlq == nil {
			consumerHandled.WithLabelValues(msg.Topic, result).Inc()
			return
		}
		if derr := c.dlq.WriteMessages(context.Background(), kafka.Message{
			Topic:   c.cfg.dlqTopic,
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.Topic)}},
		}); derr != nil {
			c.lgr.Error("kafka dlq write failed", logger.String("topic", c.cfg.dlqTopic), logger.Error(derr))
		}
		result = "dlq"
	}
	consumerHandled.WithLabelValues(msg.Topic, result).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if cerr := c.readers[msg.Topic].CommitMessages(ctx, msg); cerr != nil {
		c.lgr.Warn("kafka commit failed", logger.String("topic", msg.Topic), logger.Error(cerr))
	}
}

func (c *Consumer) safeHandle(h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return h.Handle(ctx, data)
}

func backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	return d - time.Duration(rand.Int63n(int64(d)/2+1))
}

package kafka

import "time"

// Config is the desk's Kafka section.
type Config struct {
	Brokers       []string      `yaml:"brokers"`
	EventsTopic   string        `yaml:"events_topic" default:"tradedesk.events"`
	EvidenceTopic string        `yaml:"evidence_topic" default:"tradedesk.evidence"`
	GroupID       string        `yaml:"group_id" default:"tradedesk"`
	DLQTopic      string        `yaml:"dlq_topic"`
	Compression   string        `yaml:"compression" default:"gzip"`
	Workers       int           `yaml:"workers" default:"2"`
	RetryMax      int           `yaml:"retry_max" default:"3"`
	WriteTimeout  time.Duration `yaml:"write_timeout" default:"10s"`
}

// Enabled reports whether brokers are configured.
func (c Config) Enabled() bool { return len(c.Brokers) > 0 }

// ProducerOption configures Producer.
type ProducerOption func(*producerConfig)

type producerConfig struct {
	brokers      []string
	compression  string
	maxAttempts  int
	writeTimeout time.Duration
	batchTimeout time.Duration
	async        bool
}

func WithBrokers(brokers []string) ProducerOption {
	return func(c *producerConfig) { c.brokers = brokers }
}

func WithCompression(compression string) ProducerOption {
	return func(c *producerConfig) { c.compression = compression }
}

func WithMaxAttempts(n int) ProducerOption {
	return func(c *producerConfig) { c.maxAttempts = n }
}

func WithWriteTimeout(d time.Duration) ProducerOption {
	return func(c *producerConfig) { c.writeTimeout = d }
}

// WithBatchTimeout bounds how long a partial batch waits before flushing.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(c *producerConfig) { c.batchTimeout = d }
}

// WithAsync makes Publish return before the broker acknowledges.
func WithAsync(async bool) ProducerOption {
	return func(c *producerConfig) { c.async = async }
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	brokers    []string
	groupID    string
	workers    int
	bufferSize int
	retryMax   int
	backoffMin time.Duration
	backoffMax time.Duration
	dlqTopic   string
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *consumerConfig) { c.brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *consumerConfig) { c.groupID = groupID }
}

func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *consumerConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithConsumerRetry configures handler retries and the backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *consumerConfig) {
		c.retryMax = max
		c.backoffMin = backoffMin
		c.backoffMax = backoffMax
	}
}

// WithConsumerDLQ routes messages that exhaust their retries to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *consumerConfig) { c.dlqTopic = topic }
}

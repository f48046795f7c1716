package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TradeDesk/internal/calibration"
	"TradeDesk/internal/decision"
	"TradeDesk/internal/domain/repository"
	"TradeDesk/internal/evaluator"
	"TradeDesk/internal/handler/api"
	"TradeDesk/internal/ledger"
	"TradeDesk/internal/market"
	"TradeDesk/internal/memory"
	internalrepo "TradeDesk/internal/repository"
	"TradeDesk/internal/scheduler"
	"TradeDesk/internal/selection"
	"TradeDesk/internal/service/notify"
	"TradeDesk/internal/usecase"
	"TradeDesk/pkg/cache"
	pkgch "TradeDesk/pkg/clickhouse"
	"TradeDesk/pkg/config"
	pkgkafka "TradeDesk/pkg/kafka"
	"TradeDesk/pkg/logger"
	"TradeDesk/pkg/metrics"
	"TradeDesk/pkg/postgres"
	"TradeDesk/pkg/queue"
	"TradeDesk/pkg/server"
)

// Optional infrastructure providers return nil when their section is
// disabled. Consumers check for nil before wiring.

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(nil)
}

// ProvideRedis connects the shared Redis client.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(cache.WithRedisConfig(cfg.Redis))
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache builds the quote cache backend.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) (cache.Service, error) {
	c, err := cache.New(cfg.Cache, rc)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return c, nil
}

// ProvideKafkaProducer creates the Kafka producer and, when log shipping is
// on, attaches the log collector to it.
func ProvideKafkaProducer(cfg *config.Config, lgr *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled() {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Logs.Enabled {
		lgr.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logs.Interval,
			CountThreshold: cfg.Logs.Threshold,
			MinLevel:       cfg.Logs.MinLevel,
			Topic:          cfg.Logs.Topic,
			Publisher:      producer,
		})
	}
	cleanup := func() {
		lgr.RemoveCollector()
		_ = producer.Close()
	}
	return producer, cleanup, nil
}

// ProvidePublisher publishes desk events to Kafka.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvidePostgres opens the gorm connection.
func ProvidePostgres(cfg *config.Config) (*postgres.Client, func(), error) {
	if !cfg.Postgres.Enabled {
		return nil, func() {}, nil
	}
	client, err := postgres.NewClient(cfg.Postgres.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideJournal creates the ClickHouse trade journal and its tables.
func ProvideJournal(cfg *config.Config, lgr *logger.Logger) (repository.Journal, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(cfg.ClickHouse.Config)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	journal := internalrepo.NewCHJournal(client, lgr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := journal.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return journal, nil
}

// ProvideSnapshotStore picks the persistence backend.
func ProvideSnapshotStore(cfg *config.Config, rc *cache.RedisCache, pg *postgres.Client, lgr *logger.Logger) (repository.SnapshotStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Persistence.Backend {
	case config.PersistenceRedis:
		if rc == nil {
			return nil, fmt.Errorf("persistence: redis is disabled")
		}
		store := internalrepo.NewRedisSnapshotStore(rc, cfg.Persistence.Key, cfg.Persistence.LeaseTTL, lgr)
		if err := store.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("persistence: %w", err)
		}
		return store, nil
	case config.PersistencePostgres:
		if pg == nil {
			return nil, fmt.Errorf("persistence: postgres is disabled")
		}
		store := internalrepo.NewPostgresSnapshotStore(pg.DB(), cfg.Persistence.Key, lgr)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("persistence: %w", err)
		}
		return store, nil
	default:
		store, err := internalrepo.NewFileSnapshotStore(cfg.Persistence.Path)
		if err != nil {
			return nil, fmt.Errorf("persistence: %w", err)
		}
		return store, nil
	}
}

// ProvideTape opens the Finnhub trade tape when an API key is configured.
func ProvideTape(cfg *config.Config, lgr *logger.Logger) *market.Tape {
	if cfg.Market.Finnhub.APIKey == "" {
		return nil
	}
	return market.NewTape(cfg.Market.Finnhub, lgr)
}

// ProvideMarketSources builds the quote source chain in configured order.
func ProvideMarketSources(cfg *config.Config) ([]market.Source, error) {
	names := cfg.Market.Providers
	if len(names) == 0 {
		names = []string{"yahoo", "stooq"}
	}
	sources := make([]market.Source, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "yahoo":
			sources = append(sources, market.NewYahoo())
		case "stooq":
			sources = append(sources, market.NewStooq(cfg.Market.StooqURL, cfg.Market.Timeout))
		default:
			return nil, fmt.Errorf("market: unknown provider %q", name)
		}
	}
	return sources, nil
}

// ProvideMarket creates the market data service.
func ProvideMarket(cfg *config.Config, sources []market.Source, c cache.Service, tape *market.Tape, lgr *logger.Logger) *market.Service {
	return market.NewService(sources, c, tape, cfg.Market.QuoteTTL, lgr.With(logger.String("component", "market")))
}

func ProvideEvaluatorRegistry() *evaluator.Registry {
	return evaluator.NewRegistry()
}

// ProvideEvaluators builds the per-stage evaluator set.
func ProvideEvaluators(cfg *config.Config, reg *evaluator.Registry, lgr *logger.Logger) (evaluator.Set, error) {
	set, err := reg.Build(cfg.Evaluator, lgr)
	if err != nil {
		return nil, fmt.Errorf("evaluators: %w", err)
	}
	return set, nil
}

func ProvideMemory(cfg *config.Config) *memory.Store {
	return memory.NewStore(cfg.Memory)
}

func ProvideLedger(cfg *config.Config) *ledger.Ledger {
	return ledger.New(cfg.Ledger)
}

// ProvideAccounts holds the per-user paper accounts. They share the desk
// ledger's capital and caps.
func ProvideAccounts(cfg *config.Config) *ledger.Accounts {
	return ledger.NewAccounts(cfg.Ledger)
}

func ProvideRules(cfg *config.Config) *decision.Rules {
	return decision.NewRules(cfg.Decision)
}

func ProvideCalibration(cfg *config.Config) *calibration.Engine {
	return calibration.NewEngine(cfg.Calibration)
}

// ProvideSelector creates the candidate selector backed by live quotes.
func ProvideSelector(cfg *config.Config, m *market.Service, lgr *logger.Logger) scheduler.CandidateSource {
	if !cfg.Selection.Enabled {
		return nil
	}
	return selection.NewSelector(m, cfg.Selection.Config, lgr.With(logger.String("component", "selection")), nil)
}

// ProvideQueue creates the Redis job queue.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, lgr *logger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	return queue.NewRedisQueue(lgr, cfg.Queue, rc.Client())
}

// ProvideTelegram creates the Telegram sender when a token and chat are set.
func ProvideTelegram(cfg *config.Config) (*notify.Telegram, error) {
	if !cfg.Telegram.Enabled() {
		return nil, nil
	}
	tg, err := notify.NewTelegram(cfg.Telegram)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return tg, nil
}

// ProvideNotifier queues notifications when Redis is available and sends
// them inline otherwise.
func ProvideNotifier(q *queue.RedisQueue, tg *notify.Telegram, lgr *logger.Logger) scheduler.Notifier {
	if tg == nil {
		return nil
	}
	if q == nil {
		return usecase.NewDirectNotifier(tg)
	}
	q.Register(usecase.NewNotifyJob(tg, lgr))
	return usecase.NewQueueNotifier(q)
}

// ProvideScheduler assembles the desk service.
func ProvideScheduler(
	cfg *config.Config,
	m *market.Service,
	evaluators evaluator.Set,
	reg *evaluator.Registry,
	engine *calibration.Engine,
	mem *memory.Store,
	l *ledger.Ledger,
	accounts *ledger.Accounts,
	rules *decision.Rules,
	selector scheduler.CandidateSource,
	store repository.SnapshotStore,
	pub repository.Publisher,
	journal repository.Journal,
	notifier scheduler.Notifier,
	rec *metrics.Recorder,
	lgr *logger.Logger,
) *scheduler.Service {
	return scheduler.New(cfg.Scheduler, scheduler.Deps{
		Market:            m,
		Evaluators:        evaluators,
		Registry:          reg,
		EvaluatorConfig:   cfg.Evaluator,
		Engine:            engine,
		CalibrationConfig: cfg.Calibration,
		Memory:            mem,
		Ledger:            l,
		Accounts:          accounts,
		Rules:             rules,
		Selector:          selector,
		Store:             store,
		Publisher:         pub,
		Journal:           journal,
		Notifier:          notifier,
		Metrics:           rec,
		Logger:            lgr.With(logger.String("component", "scheduler")),
	})
}

// ProvideKafkaConsumer consumes the evidence topic into the scheduler.
func ProvideKafkaConsumer(cfg *config.Config, desk *scheduler.Service, rec *metrics.Recorder, lgr *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled() || cfg.Kafka.EvidenceTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(lgr,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.RetryMax, 100*time.Millisecond, 5*time.Second),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewEvidenceConsumer(cfg.Kafka.EvidenceTopic, desk, rec, lgr))
	return consumer, nil
}

// ProvideDeskHandler creates the HTTP control surface.
func ProvideDeskHandler(cfg *config.Config, desk *scheduler.Service, l *ledger.Ledger, m *market.Service, journal repository.Journal, lgr *logger.Logger) *api.DeskHandler {
	var opts []api.Option
	if journal != nil {
		opts = append(opts, api.WithJournal(journal))
	}
	return api.NewDeskHandler(lgr, desk, l, m, cfg.Evaluator, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	desk *scheduler.Service,
	handler *api.DeskHandler,
	rec *metrics.Recorder,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	tape *market.Tape,
	journal repository.Journal,
) *server.App {
	return server.New(cfg, lgr, desk, handler,
		server.WithObserver(rec),
		server.WithConsumer(consumer),
		server.WithQueue(q),
		server.WithTape(tape),
		server.WithJournal(journal),
	)
}

//go:build wireinject
// +build wireinject

package di

import (
	"TradeDesk/pkg/config"
	"TradeDesk/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedis,
		ProvideCache,
		ProvideKafkaProducer,
		ProvidePostgres,

		// Repositories
		ProvidePublisher,
		ProvideJournal,
		ProvideSnapshotStore,

		// Market data
		ProvideTape,
		ProvideMarketSources,
		ProvideMarket,

		// Desk components
		ProvideEvaluatorRegistry,
		ProvideEvaluators,
		ProvideMemory,
		ProvideLedger,
		ProvideAccounts,
		ProvideRules,
		ProvideCalibration,
		ProvideSelector,

		// Notifications
		ProvideQueue,
		ProvideTelegram,
		ProvideNotifier,

		ProvideScheduler,
		ProvideKafkaConsumer,
		ProvideDeskHandler,
		ProvideApp,
	)
	return nil, nil, nil
}

package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"TradeDesk/internal/domain/repository"
	"TradeDesk/internal/market"
	"TradeDesk/internal/scheduler"
	"TradeDesk/pkg/config"
	xhttp "TradeDesk/pkg/http"
	"TradeDesk/pkg/http/middleware"
	pkgkafka "TradeDesk/pkg/kafka"
	applogger "TradeDesk/pkg/logger"
	"TradeDesk/pkg/queue"
)

// Option attaches an optional runtime component to the App.
type Option func(*App)

func WithObserver(o middleware.RequestObserver) Option {
	return func(a *App) { a.observer = o }
}

func WithConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

func WithQueue(q *queue.RedisQueue) Option {
	return func(a *App) { a.queue = q }
}

func WithTape(t *market.Tape) Option {
	return func(a *App) { a.tape = t }
}

func WithJournal(j repository.Journal) Option {
	return func(a *App) { a.journal = j }
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg      *config.Config
	lgr      *applogger.Logger
	desk     *scheduler.Service
	handler  xhttp.Handler
	observer middleware.RequestObserver

	consumer *pkgkafka.Consumer
	queue    *queue.RedisQueue
	tape     *market.Tape
	journal  repository.Journal

	httpServer *xhttp.Server
	stopTape   context.CancelFunc
	tapeDone   chan struct{}
	stopOnce   sync.Once
	stopErr    error
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, lgr *applogger.Logger, desk *scheduler.Service, handler xhttp.Handler, opts ...Option) *App {
	if lgr == nil {
		lgr = applogger.NewNop()
	}
	a := &App{cfg: cfg, lgr: lgr, desk: desk, handler: handler}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start restores the desk and brings up every runtime component. It does
// not block.
func (a *App) Start(ctx context.Context) error {
	if err := a.desk.Init(ctx); err != nil {
		return fmt.Errorf("desk init: %w", err)
	}

	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			return fmt.Errorf("queue: %w", err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
	}
	if a.tape != nil {
		tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.stopTape = cancel
		a.tapeDone = make(chan struct{})
		go func() {
			defer close(a.tapeDone)
			if err := a.tape.Run(tctx); err != nil {
				a.lgr.Error("trade tape stopped", applogger.Error(err))
			}
		}()
		a.lgr.Info("trade tape started")
	}

	if a.cfg.Scheduler.Autostart {
		if err := a.desk.Start(); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}

	opts := []xhttp.ServerOption{
		xhttp.WithConfig(a.cfg.Server),
		xhttp.WithLogger(a.lgr),
	}
	if a.observer != nil {
		opts = append(opts, xhttp.WithObserver(a.observer))
	}
	a.httpServer = xhttp.NewServer(opts, a.handler)
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	a.lgr.Info("tradedesk started",
		applogger.String("environment", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("scheduler", a.desk.Running()),
		applogger.Strings("symbols", a.desk.Active()))
	return nil
}

// Run starts the application and blocks until ctx is done or the process
// is interrupted.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		shutdownErr := a.Shutdown(context.Background())
		if shutdownErr != nil {
			a.lgr.Warn("partial startup cleanup failed", applogger.Error(shutdownErr))
		}
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.lgr.Info("shutdown signal received", applogger.String("signal", sig.String()))
	case <-ctx.Done():
		a.lgr.Info("context cancelled, shutting down")
	}
	return a.Shutdown(context.Background())
}

// Shutdown stops the HTTP surface first, drains the consumers, then flushes
// the desk snapshot. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		a.lgr.Info("shutting down")

		if a.httpServer != nil {
			if err := a.httpServer.Stop(ctx); err != nil {
				a.lgr.Error("http shutdown error", applogger.Error(err))
			}
		}
		if a.consumer != nil {
			if err := a.consumer.Stop(ctx); err != nil {
				a.lgr.Warn("kafka consumer stop error", applogger.Error(err))
			}
		}

		if err := a.desk.Shutdown(ctx); err != nil {
			a.lgr.Error("desk shutdown error", applogger.Error(err))
			a.stopErr = err
		}

		if a.queue != nil {
			if err := a.queue.Stop(ctx); err != nil {
				a.lgr.Warn("queue stop error", applogger.Error(err))
			}
		}
		if a.stopTape != nil {
			a.stopTape()
			select {
			case <-a.tapeDone:
			case <-ctx.Done():
				a.lgr.Warn("trade tape did not stop in time")
			}
		}
		if a.journal != nil {
			if err := a.journal.Close(); err != nil {
				a.lgr.Warn("journal close error", applogger.Error(err))
			}
		}

		a.lgr.Info("shutdown complete")
	})
	return a.stopErr
}

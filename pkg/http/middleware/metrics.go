package middleware

import (
	"strconv"
	"time"

	"TradeDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestObserver receives one observation per finished request.
type RequestObserver interface {
	ObserveRequest(route, code string, seconds float64)
}

// Metrics records request latency by route template. Server errors and
// requests slower than slowThreshold are logged.
func Metrics(obs RequestObserver, l *logger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	if l == nil {
		l = logger.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			elapsed := time.Since(start)
			if obs != nil {
				obs.ObserveRequest(route, strconv.Itoa(status), elapsed.Seconds())
			}

			fields := []logger.Field{
				logger.String("route", route),
				logger.String("method", c.Request().Method),
				logger.Int("status", status),
				logger.Duration("duration", elapsed),
				logger.Int64("bytes", c.Response().Size),
			}
			switch {
			case status >= 500:
				l.Error("http request failed", fields...)
			case slowThreshold > 0 && elapsed >= slowThreshold:
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}

package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/fanout/internal/domain"
)

// ErrorHandlingMiddleware turns handler errors into JSON responses. echo.HTTPErrors pass
// through to echo's own handler.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			status := statusFor(err)
			logError(c, err, status)

			if c.Response().Committed {
				return nil
			}
			if err := c.JSON(status, map[string]string{"error": http.StatusText(status)}); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrShuttingDown), errors.Is(err, domain.ErrBrokerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrAtCapacity):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func logError(c echo.Context, err error, status int) {
	attrs := []any{
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", status,
		"error", err,
	}

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		slog.Error("Internal error", attrs...)
		return
	}
	slog.Warn("Request failed", attrs...)
}

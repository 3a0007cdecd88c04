package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Freeeeeet/evalcalendar/internal/service"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	HeaderSupervisorID = "X-Supervisor-ID"
	HeaderAdminToken   = "X-Admin-Token"

	supervisorIDKey = "supervisor_id"
)

var httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "evalcalendar",
	Name:      "http_requests_total",
	Help:      "HTTP requests by route and status.",
}, []string{"method", "route", "status"})

// Collectors метрики HTTP слоя
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{httpRequests}
}

// RequestLogger пишет каждый запрос в zap и считает его в метриках
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return echoMw.RequestLoggerWithConfig(echoMw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogRoutePath: true,
		LogLatency:   true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echoMw.RequestLoggerValues) error {
			httpRequests.WithLabelValues(v.Method, v.RoutePath, strconv.Itoa(v.Status)).Inc()

			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			if v.Status >= http.StatusInternalServerError {
				logger.Error("HTTP request failed", fields...)
				return nil
			}
			logger.Info("HTTP request", fields...)
			return nil
		},
	})
}

// ErrorHandler переводит доменные ошибки в HTTP ответы
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, resp := errorResponse(err)
		if status >= http.StatusInternalServerError {
			logger.Error("Unhandled API error",
				zap.String("path", c.Path()),
				zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, resp)
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		return he.Code, ErrorResponse{Code: codeForStatus(he.Code), Message: msg}
	}

	switch {
	case errors.Is(err, service.ErrSlotUnavailable):
		return http.StatusConflict, ErrorResponse{Code: "slot_unavailable", Message: "slot is not available"}
	case errors.Is(err, service.ErrNotPending):
		return http.StatusConflict, ErrorResponse{Code: "not_pending", Message: "booking is no longer pending"}
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, ErrorResponse{Code: "conflict", Message: "slot is held by an active booking"}
	case errors.Is(err, service.ErrSupervisorHasActiveBookings):
		return http.StatusConflict, ErrorResponse{Code: "has_active_bookings", Message: err.Error()}
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "not found"}
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, ErrorResponse{Code: "invalid_input", Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorResponse{Code: "internal", Message: "internal error"}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_input"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	}
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}

// RequireSupervisor берёт id супервизора из заголовка, выставленного слоем аутентификации
func RequireSupervisor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := c.Request().Header.Get(HeaderSupervisorID)
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderSupervisorID)
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid "+HeaderSupervisorID)
		}
		c.Set(supervisorIDKey, id)
		return next(c)
	}
}

func supervisorID(c echo.Context) int64 {
	id, _ := c.Get(supervisorIDKey).(int64)
	return id
}

// RequireAdmin сравнивает токен администратора за постоянное время
func RequireAdmin(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(HeaderAdminToken)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin token")
			}
			return next(c)
		}
	}
}

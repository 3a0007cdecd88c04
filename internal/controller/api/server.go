package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthCheck проверка хранилища для /healthz
type HealthCheck func(ctx context.Context) error

// Server HTTP сервер API на echo
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *zap.Logger
}

// NewServer собирает echo с middleware, маршрутами API, /healthz и /metrics
func NewServer(addr string, h *Handler, adminToken string, health HealthCheck, registry *prometheus.Registry, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	e.Use(echoMw.Recover())
	e.Use(RequestLogger(logger))

	e.GET("/healthz", func(c echo.Context) error {
		if health != nil {
			if err := health(c.Request().Context()); err != nil {
				logger.Error("Health check failed", zap.Error(err))
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "evalcalendar"})
	})
	if registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	h.RegisterRoutes(e, adminToken)

	return &Server{echo: e, addr: addr, logger: logger}
}

// Echo экземпляр echo (для тестов)
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start блокирует до остановки сервера
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown корректно останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Package server owns the HTTP process: echo wiring, lifecycle, and the
// operational endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hiwar-ai/hiwar/ai/llm"
	"github.com/hiwar-ai/hiwar/ai/prompt"
	"github.com/hiwar-ai/hiwar/chat"
	"github.com/hiwar-ai/hiwar/internal/profile"
	apiv1 "github.com/hiwar-ai/hiwar/server/router/api/v1"
	"github.com/hiwar-ai/hiwar/store"
)

type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
	store      *store.Store
	dispatcher *chat.Dispatcher
	notifier   *chat.Notifier
	registry   *prometheus.Registry
}

func NewServer(ctx context.Context, profile *profile.Profile, st *store.Store) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	completer, err := llm.NewService(&llm.Config{
		Provider: profile.LLMProvider,
		Model:    profile.LLMModel,
		APIKey:   profile.LLMAPIKey,
		BaseURL:  profile.LLMBaseURL,
		Timeout:  profile.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	notifier := chat.NewNotifier()
	dispatcher := chat.NewDispatcher(st, completer, notifier, chat.DispatcherConfig{
		DefaultLocale: prompt.ParseLocale(profile.DefaultLocale),
		Metrics:       chat.NewMetrics(registry),
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger())

	s := &Server{
		echoServer: e,
		profile:    profile,
		store:      st,
		dispatcher: dispatcher,
		notifier:   notifier,
		registry:   registry,
	}

	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	apiService := apiv1.NewAPIV1Service(profile.JWTSecret, profile, st, dispatcher, registry)
	apiService.RegisterRoutes(e)

	return s, nil
}

// Dispatcher exposes the dispatch pipeline for embedding callers.
func (s *Server) Dispatcher() *chat.Dispatcher {
	return s.dispatcher
}

// Notifier exposes the invalidation fan-out for embedding callers.
func (s *Server) Notifier() *chat.Notifier {
	return s.notifier
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("server started",
		"address", address,
		"mode", s.profile.Mode,
		"driver", s.profile.Driver,
		"version", s.profile.Version,
	)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echoServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down server gracefully", "error", err)
		}
	}()

	if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown closes the HTTP listener and the store.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	if err := s.store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server stopped")
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.profile.Version,
	})
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	})
}

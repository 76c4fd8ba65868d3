package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"agent-relay/internal/config"
	"agent-relay/internal/router"
	"agent-relay/internal/translator"
)

const (
	bodyLimit           = "1M"
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
	rateLimitExpiry     = 3 * time.Minute
)

type Server struct {
	cfg     config.Config
	router  *router.Router
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, rt *router.Router) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = relayErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Pre(corsMiddleware(cfg.Server.AllowedOrigins))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"request_id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))
	e.Use(middleware.BodyLimit(bodyLimit))
	if limit := cfg.Server.RateLimit; limit.RequestsPerSecond > 0 {
		e.Use(rateLimiter(limit))
	}

	srv := &Server{
		cfg:     cfg,
		router:  rt,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the configured echo instance.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port)
	slog.Info("starting server", "addr", s.address)

	// No WriteTimeout: streamed replies may legitimately run for minutes.
	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.POST("/chat", s.handleChat)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(c echo.Context) error {
	var wire translator.ChatRequest
	if err := decodeRequestBody(c, &wire); err != nil {
		return err
	}

	req, err := wire.ToModel()
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	authorization := c.Request().Header.Get(echo.HeaderAuthorization)

	if req.Stream {
		stream, err := s.router.Stream(ctx, req, authorization)
		if err != nil {
			return err
		}
		return writeStream(c, stream)
	}

	resp, err := s.router.Chat(ctx, req, authorization)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", translator.ErrInvalidRequest)
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit),
				Type:    errorTypeInvalidRequest,
			}
		}
		return fmt.Errorf("%w: invalid JSON payload: %v", translator.ErrInvalidRequest, err)
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: request body must contain a single JSON object", translator.ErrInvalidRequest)
	}
	return nil
}

func rateLimiter(limit config.RateLimitConfig) echo.MiddlewareFunc {
	burst := limit.Burst
	if burst == 0 {
		burst = int(limit.RequestsPerSecond) + 1
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(limit.RequestsPerSecond),
		Burst:     burst,
		ExpiresIn: rateLimitExpiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return requestError{
				Status:  http.StatusForbidden,
				Message: "unable to identify caller for rate limiting",
				Type:    errorTypeRateLimited,
			}
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return requestError{
				Status:  http.StatusTooManyRequests,
				Message: "rate limit exceeded, retry later",
				Type:    errorTypeRateLimited,
			}
		},
	})
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("agent-relay ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /chat")
	fmt.Printf("Example:\n  curl http://%s:%d/chat -H 'Authorization: Bearer <token>' -H 'Content-Type: application/json' -d '{\"provider\":\"deepseek\",\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n\n", host, port)
}

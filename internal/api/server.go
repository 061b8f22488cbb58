package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/sequelarr/internal/api/handlers"
	"github.com/amaumene/sequelarr/internal/api/middleware"
	"github.com/amaumene/sequelarr/internal/config"
	"github.com/amaumene/sequelarr/internal/controllers"
	"github.com/amaumene/sequelarr/internal/models"
	"github.com/amaumene/sequelarr/internal/notify"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server represents the HTTP server
type Server struct {
	app          *fiber.App
	port         string
	db           *models.Database
	tokens       *notify.TokenIssuer
	ingestCtrl   *controllers.IngestController
	dispatchCtrl *controllers.DispatchController
	logger       zerolog.Logger
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.Config,
	db *models.Database,
	tokens *notify.TokenIssuer,
	ingestCtrl *controllers.IngestController,
	dispatchCtrl *controllers.DispatchController,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		port:         cfg.ServerPort,
		db:           db,
		tokens:       tokens,
		ingestCtrl:   ingestCtrl,
		dispatchCtrl: dispatchCtrl,
		logger:       logger,
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(middleware.Logging(logger))
	s.setupRoutes()

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.logger)
	s.app.Get("/health", healthHandler.Handle)

	statusHandler := handlers.NewStatusHandler(s.db, s.logger)
	s.app.Get("/status", statusHandler.Handle)

	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Unsubscribe is reached from email links, so GET works too.
	unsubscribeHandler := handlers.NewUnsubscribeHandler(s.db, s.tokens, s.logger)
	s.app.Get("/unsubscribe", unsubscribeHandler.Handle)
	s.app.Post("/unsubscribe", unsubscribeHandler.Handle)

	api := s.app.Group("/api")

	importHandler := handlers.NewImportHandler(s.ingestCtrl, s.dispatchCtrl, s.logger)
	api.Post("/import", importHandler.Import)
	api.Post("/sweep", importHandler.Sweep)

	users := api.Group("/users/:userID")

	notificationsHandler := handlers.NewNotificationsHandler(s.db, s.logger)
	users.Get("/notifications", notificationsHandler.List)
	users.Get("/notifications/unread-count", notificationsHandler.UnreadCount)
	users.Post("/notifications/read-all", notificationsHandler.MarkAllRead)
	users.Post("/notifications/:id/read", notificationsHandler.MarkRead)

	preferencesHandler := handlers.NewPreferencesHandler(s.db, s.logger)
	users.Get("/preferences", preferencesHandler.Get)
	users.Put("/preferences", preferencesHandler.Update)

	contactHandler := handlers.NewContactHandler(s.db, s.logger)
	users.Get("/contact", contactHandler.Get)
	users.Put("/contact", contactHandler.Put)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info().Str("port", s.port).Msg("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(":" + s.port); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithTimeout(10 * time.Second)
}

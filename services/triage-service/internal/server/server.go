package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stoik/triage/internal/models"
	"github.com/stoik/triage/services/triage-service/internal/metrics"
	"github.com/stoik/triage/services/triage-service/internal/pipeline"
	"github.com/stoik/triage/services/triage-service/internal/redaction"
	"go.uber.org/zap"
)

// Notifications handles the entries of one webhook delivery, still undecoded
type Notifications interface {
	HandleNotifications(ctx context.Context, batch []json.RawMessage) []pipeline.EntryResult
}

// Subscriptions are the admin operations on webhook subscriptions
type Subscriptions interface {
	List(ctx context.Context) ([]models.Subscription, error)
	Create(ctx context.Context, webhookURL string) (*models.Subscription, error)
	Delete(ctx context.Context, subscriptionID string) error
}

// Reader is the read side of the persistence layer plus schema setup
type Reader interface {
	Migrate(ctx context.Context) error
	RecentEmails(ctx context.Context, limit int) ([]models.ProcessedEmail, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.ProcessedEmail, error)
	ClassificationCounts(ctx context.Context) ([]models.ClassificationCount, error)
	ConversationEmails(ctx context.Context, conversationID string) ([]models.ProcessedEmail, error)
	ConversationSummaries(ctx context.Context, limit int) ([]models.ConversationSummary, error)
	UsageSummaries(ctx context.Context) ([]models.UsageSummary, error)
}

type RedactionSettings interface {
	Settings() redaction.Settings
}

// Options wires the HTTP surface
type Options struct {
	Notifications Notifications
	Subscriptions Subscriptions
	Store         Reader
	Redaction     RedactionSettings
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

type Server struct {
	notifications Notifications
	subscriptions Subscriptions
	store         Reader
	redaction     RedactionSettings
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		notifications: opts.Notifications,
		subscriptions: opts.Subscriptions,
		store:         opts.Store,
		redaction:     opts.Redaction,
		metrics:       opts.Metrics,
		logger:        logger.Named("http"),
	}
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(s.logger))

	r.GET("/", s.handleHealth)

	r.GET("/webhook", s.handleWebhook)
	r.POST("/webhook", s.handleWebhook)

	r.GET("/subscriptions", s.handleListSubscriptions)
	r.POST("/subscriptions", s.handleCreateSubscription)
	r.DELETE("/subscriptions", s.handleDeleteSubscription)

	r.GET("/emails", s.handleRecentEmails)
	r.GET("/emails/:message_id", s.handleEmail)
	r.GET("/stats", s.handleStats)
	r.GET("/conversations", s.handleConversations)
	r.GET("/conversation/:id", s.handleConversation)
	r.GET("/llm-usage", s.handleUsage)
	r.GET("/redaction-config", s.handleRedactionConfig)
	r.POST("/init-db", s.handleInitDB)

	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not Found")
	})
	return r
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

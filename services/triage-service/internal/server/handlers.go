package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stoik/triage/internal/models"
	"github.com/stoik/triage/services/triage-service/internal/pipeline"
	"github.com/stoik/triage/services/triage-service/internal/provider"
	"github.com/stoik/triage/services/triage-service/internal/store"
	"github.com/stoik/triage/services/triage-service/internal/subscription"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "inbox-triage"})
}

// handleWebhook answers the subscription handshake and accepts notification
// deliveries. A delivery is always acknowledged with 202: the provider
// retries anything else, and duplicates are absorbed by the store.
func (s *Server) handleWebhook(c *gin.Context) {
	if token := c.Query("validationToken"); token != "" {
		s.logger.Info("Webhook validation request received", zap.String("method", c.Request.Method))
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(token))
		return
	}

	if c.Request.Method == http.MethodGet {
		c.String(http.StatusBadRequest, "Missing validationToken")
		return
	}

	log := s.logger.With(zap.String("delivery_id", c.GetString(requestIDKey)))

	// entries stay raw so one bad entry is rejected on its own
	var batch struct {
		Value []json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(c.Request.Body).Decode(&batch); err != nil {
		log.Error("Webhook processing error", zap.Error(err))
		c.Status(http.StatusAccepted)
		return
	}
	log.Info("Webhook received", zap.Int("notifications", len(batch.Value)))

	results := s.notifications.HandleNotifications(c.Request.Context(), batch.Value)

	counts := make(map[pipeline.Outcome]int, len(results))
	for _, r := range results {
		counts[r.Outcome]++
	}
	log.Info("Webhook delivery handled",
		zap.Int("processed", counts[pipeline.OutcomeProcessed]),
		zap.Int("duplicate", counts[pipeline.OutcomeDuplicate]),
		zap.Int("failed", counts[pipeline.OutcomeFailed]),
		zap.Int("malformed", counts[pipeline.OutcomeMalformed]),
		zap.Int("skipped", len(results)-counts[pipeline.OutcomeProcessed]-counts[pipeline.OutcomeDuplicate]-counts[pipeline.OutcomeFailed]-counts[pipeline.OutcomeMalformed]),
	)

	c.Status(http.StatusAccepted)
}

func (s *Server) handleListSubscriptions(c *gin.Context) {
	subs, err := s.subscriptions.List(c.Request.Context())
	if err != nil {
		s.providerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (s *Server) handleCreateSubscription(c *gin.Context) {
	var req struct {
		WebhookURL string `json:"webhook_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.WebhookURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook_url required in body"})
		return
	}

	sub, err := s.subscriptions.Create(c.Request.Context(), req.WebhookURL)
	if err != nil {
		s.providerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"subscription": sub,
		"note":         "Save the subscription ID - needed to delete/renew",
	})
}

func (s *Server) handleDeleteSubscription(c *gin.Context) {
	var req struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SubscriptionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subscription_id required in body"})
		return
	}

	if err := s.subscriptions.Delete(c.Request.Context(), req.SubscriptionID); err != nil {
		s.providerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "deleted": req.SubscriptionID})
}

// providerError maps admin failures: bad input is 400, anything the provider
// said is relayed with its body, everything else is 500.
func (s *Server) providerError(c *gin.Context, err error) {
	if errors.Is(err, subscription.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":           err.Error(),
			"provider_status": apiErr.StatusCode,
			"provider_body":   apiErr.Body,
		})
		return
	}
	if errors.Is(err, provider.ErrAuthentication) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	s.logger.Error("Subscription request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) handleRecentEmails(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}

	emails, err := s.store.RecentEmails(c.Request.Context(), limit)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": emails})
}

func (s *Server) handleEmail(c *gin.Context) {
	email, err := s.store.GetByMessageID(c.Request.Context(), c.Param("message_id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		return
	}
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.ClassificationCounts(c.Request.Context())
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) handleConversations(c *gin.Context) {
	stats, err := s.store.ConversationSummaries(c.Request.Context(), 0)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_stats": stats})
}

func (s *Server) handleConversation(c *gin.Context) {
	id := c.Param("id")
	emails, err := s.store.ConversationEmails(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "emails": emails})
}

func (s *Server) handleUsage(c *gin.Context) {
	usage, err := s.store.UsageSummaries(c.Request.Context())
	if err != nil {
		s.storeError(c, err)
		return
	}

	var total models.UsageSummary
	for _, u := range usage {
		total.Calls += u.Calls
		total.InputTokens += u.InputTokens
		total.OutputTokens += u.OutputTokens
		total.TotalTokens += u.TotalTokens
	}
	c.JSON(http.StatusOK, gin.H{
		"by_model": usage,
		"totals": gin.H{
			"calls":         total.Calls,
			"input_tokens":  total.InputTokens,
			"output_tokens": total.OutputTokens,
			"total_tokens":  total.TotalTokens,
		},
	})
}

func (s *Server) handleRedactionConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"redaction": s.redaction.Settings()})
}

func (s *Server) handleInitDB(c *gin.Context) {
	if err := s.store.Migrate(c.Request.Context()); err != nil {
		s.logger.Error("Database initialization failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Database initialized"})
}

func (s *Server) storeError(c *gin.Context, err error) {
	s.logger.Error("Store query failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

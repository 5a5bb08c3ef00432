package mock

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stoik/triage/internal/models"
	"go.uber.org/zap"
)

const tokenLifetime = time.Hour

func graphError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": msg}})
}

func (m *Mock) handleToken(c *gin.Context) {
	if c.PostForm("grant_type") != "client_credentials" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type"})
		return
	}
	if c.PostForm("client_id") == "" || c.PostForm("client_secret") == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	token := uuid.NewString()
	m.mu.Lock()
	m.tokens[token] = m.now().Add(tokenLifetime)
	m.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"token_type":   "Bearer",
		"expires_in":   int(tokenLifetime.Seconds()),
		"access_token": token,
	})
}

// requireToken rejects calls without a live bearer token
func (m *Mock) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		m.mu.RLock()
		expiry, ok := m.tokens[token]
		m.mu.RUnlock()
		if !ok || m.now().After(expiry) {
			graphError(c, http.StatusUnauthorized, "InvalidAuthenticationToken", "Access token is empty or expired.")
			c.Abort()
			return
		}
		c.Next()
	}
}

type graphMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Subject        string `json:"subject"`
	BodyPreview    string `json:"bodyPreview"`
	Body           struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime string   `json:"receivedDateTime"`
	Categories       []string `json:"categories"`
}

func toGraph(msg *message) graphMessage {
	var out graphMessage
	out.ID = msg.ID
	out.ConversationID = msg.ConversationID
	out.Subject = msg.Subject
	out.BodyPreview = msg.BodyPreview
	out.Body.ContentType = "html"
	out.Body.Content = msg.BodyHTML
	out.From.EmailAddress.Name = msg.FromName
	out.From.EmailAddress.Address = msg.FromAddress
	out.ReceivedDateTime = msg.ReceivedDateTime.Format(time.RFC3339)
	out.Categories = append([]string{}, msg.Categories...)
	return out
}

func (m *Mock) handleGetMessage(c *gin.Context) {
	m.mu.RLock()
	msg, ok := m.messages[c.Param("id")]
	var out graphMessage
	if ok {
		out = toGraph(msg)
	}
	m.mu.RUnlock()

	if !ok {
		graphError(c, http.StatusNotFound, "ErrorItemNotFound", "The specified object was not found in the store.")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (m *Mock) handlePatchMessage(c *gin.Context) {
	var req struct {
		Categories []string `json:"categories"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		graphError(c, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}

	m.mu.Lock()
	msg, ok := m.messages[c.Param("id")]
	var out graphMessage
	if ok {
		msg.Categories = req.Categories
		out = toGraph(msg)
	}
	m.mu.Unlock()

	if !ok {
		graphError(c, http.StatusNotFound, "ErrorItemNotFound", "The specified object was not found in the store.")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (m *Mock) handleCreateSubscription(c *gin.Context) {
	var req models.Subscription
	if err := c.ShouldBindJSON(&req); err != nil {
		graphError(c, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if req.NotificationURL == "" || req.Resource == "" || req.ChangeType == "" {
		graphError(c, http.StatusBadRequest, "ValidationError", "changeType, notificationUrl and resource are required.")
		return
	}
	if _, err := time.Parse(time.RFC3339Nano, req.ExpirationDateTime); err != nil {
		graphError(c, http.StatusBadRequest, "ValidationError", "expirationDateTime is invalid.")
		return
	}

	if err := m.validateEndpoint(c.Request.Context(), req.NotificationURL); err != nil {
		m.logger.Warn("Subscription validation failed", zap.String("url", req.NotificationURL), zap.Error(err))
		graphError(c, http.StatusBadRequest, "ValidationError",
			"Subscription validation request failed. Notification endpoint must respond with 200 OK to validation request.")
		return
	}

	req.ID = uuid.NewString()
	m.mu.Lock()
	sub := req
	m.subscriptions[req.ID] = &sub
	m.mu.Unlock()

	c.JSON(http.StatusCreated, req)
}

func (m *Mock) handleListSubscriptions(c *gin.Context) {
	m.mu.RLock()
	subs := m.activeSubscriptionsLocked()
	m.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"value": subs})
}

func (m *Mock) handleRenewSubscription(c *gin.Context) {
	var req struct {
		ExpirationDateTime string `json:"expirationDateTime"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		graphError(c, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if _, err := time.Parse(time.RFC3339Nano, req.ExpirationDateTime); err != nil {
		graphError(c, http.StatusBadRequest, "ValidationError", "expirationDateTime is invalid.")
		return
	}

	m.mu.Lock()
	sub, ok := m.subscriptions[c.Param("id")]
	var out models.Subscription
	if ok {
		sub.ExpirationDateTime = req.ExpirationDateTime
		out = *sub
	}
	m.mu.Unlock()

	if !ok {
		graphError(c, http.StatusNotFound, "ResourceNotFound", "The object was not found.")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (m *Mock) handleDeleteSubscription(c *gin.Context) {
	id := c.Param("id")
	m.mu.Lock()
	_, ok := m.subscriptions[id]
	delete(m.subscriptions, id)
	m.mu.Unlock()

	if !ok {
		graphError(c, http.StatusNotFound, "ResourceNotFound", "The object was not found.")
		return
	}
	c.Status(http.StatusNoContent)
}

package mock

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Register mounts the fake services:
//
//	/auth/{tenant}/oauth2/v2.0/token    token endpoint  (mailbox.auth_url = <base>/auth)
//	/graph/v1.0/...                     mail API        (mailbox.graph_url = <base>/graph/v1.0)
//	/presidio/analyze, /presidio/anonymize
//	/gemini/v1beta/models/...           model API       (llm.api_url = <base>/gemini/v1beta)
func (m *Mock) Register(r gin.IRouter) {
	r.POST("/auth/:tenant/oauth2/v2.0/token", m.handleToken)

	graph := r.Group("/graph/v1.0", m.requireToken())
	{
		graph.GET("/users/:user/messages/:id", m.handleGetMessage)
		graph.PATCH("/users/:user/messages/:id", m.handlePatchMessage)
		graph.GET("/subscriptions", m.handleListSubscriptions)
		graph.POST("/subscriptions", m.handleCreateSubscription)
		graph.PATCH("/subscriptions/:id", m.handleRenewSubscription)
		graph.DELETE("/subscriptions/:id", m.handleDeleteSubscription)
	}

	presidio := r.Group("/presidio")
	{
		presidio.POST("/analyze", m.handleAnalyze)
		presidio.POST("/anonymize", m.handleAnonymize)
	}

	r.POST("/gemini/v1beta/models/:model", m.handleGenerateContent)

	// Admin endpoints for testing
	admin := r.Group("/admin")
	{
		admin.POST("/messages/add", m.handleAddMessages)
	}
}

func (m *Mock) handleAddMessages(c *gin.Context) {
	var req struct {
		Count int `json:"count"`
	}

	// Try JSON body first
	if err := c.ShouldBindJSON(&req); err != nil {
		// Fall back to query parameter
		if n, err := strconv.Atoi(c.DefaultQuery("count", "1")); err == nil {
			req.Count = n
		}
	}
	if req.Count < 1 {
		req.Count = 1
	}

	ids, delivered, err := m.AddMessages(c.Request.Context(), req.Count)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"added":       len(ids),
		"message_ids": ids,
		"delivered":   delivered,
	})
}

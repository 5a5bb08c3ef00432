package mock

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// keywordRules are checked in order; the first hit decides the tag
var keywordRules = []struct {
	tag      string
	keywords []string
}{
	{"technical-proctoring", []string{"smowl", "c-ls-1001", "camera"}},
	{"complaint-escalation", []string{"unfair", "no response", "not satisfied"}},
	{"finance-payment", []string{"proof of payment", "refund", "paid my fees"}},
	{"finance-fees", []string{"fee statement", "invoice", "quote", "owe"}},
	{"admin-transcript", []string{"transcript"}},
	{"admin-graduation", []string{"graduation", "certificate"}},
	{"academic-exam", []string{"aegrotat", "supplementary", "exam"}},
	{"academic-results", []string{"results", "marks"}},
	{"registration", []string{"register"}},
	{"technical-access", []string{"password", "log into", "login"}},
}

// words approximates token counts for usage metadata
func words(s string) int {
	return len(strings.Fields(s))
}

// handleGenerateContent answers model calls with a keyword-based label.
// Route form: /models/{model}:generateContent
func (m *Mock) handleGenerateContent(c *gin.Context) {
	model, ok := strings.CutSuffix(c.Param("model"), ":generateContent")
	if !ok || model == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": 404, "message": "method not found", "status": "NOT_FOUND"}})
		return
	}
	if c.GetHeader("x-goog-api-key") == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"code": 403, "message": "API key missing", "status": "PERMISSION_DENIED"}})
		return
	}

	var req struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Contents) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": 400, "message": "contents required", "status": "INVALID_ARGUMENT"}})
		return
	}

	var prompt strings.Builder
	for _, content := range req.Contents {
		for _, p := range content.Parts {
			prompt.WriteString(p.Text)
		}
	}

	// only the email itself, not the instruction block listing every tag
	email := prompt.String()
	if i := strings.LastIndex(email, "\n---\n"); i >= 0 {
		email = email[i:]
	}
	reply := classifyText(email)

	text, _ := json.Marshal(reply)
	input := words(prompt.String())
	output := words(string(text))

	c.JSON(http.StatusOK, gin.H{
		"candidates": []gin.H{{
			"content": gin.H{
				"role":  "model",
				"parts": []gin.H{{"text": string(text)}},
			},
			"finishReason": "STOP",
		}},
		"usageMetadata": gin.H{
			"promptTokenCount":     input,
			"candidatesTokenCount": output,
			"totalTokenCount":      input + output,
		},
		"modelVersion": model,
	})
}

type classification struct {
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
}

func classifyText(email string) classification {
	lower := strings.ToLower(email)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return classification{
					Classification: rule.tag,
					Confidence:     0.9,
					Reason:         "Mentions " + kw,
				}
			}
		}
	}
	return classification{Classification: "general", Confidence: 0.4, Reason: "No specific request found"}
}

package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stoik/triage/internal/models"
	"go.uber.org/zap"
)

// Options configures the Gemini client
type Options struct {
	APIKey     string
	APIURL     string // e.g. https://generativelanguage.googleapis.com/v1beta
	Model      string
	Tags       []Tag // defaults to DefaultTags
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Classifier labels an email with one tag of a closed set using Gemini
type Classifier struct {
	apiKey   string
	endpoint string
	model    string
	tags     []Tag
	valid    map[string]struct{}
	prompt   string
	client   *http.Client
	logger   *zap.Logger
}

func New(opts Options) *Classifier {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tags := opts.Tags
	if len(tags) == 0 {
		tags = DefaultTags()
	}

	valid := make(map[string]struct{}, len(tags)+1)
	for _, t := range tags {
		valid[t.Name] = struct{}{}
	}
	if _, ok := valid[FallbackTag]; !ok {
		tags = append(tags, Tag{Name: FallbackTag, Description: "Anything that fits none of the categories above."})
		valid[FallbackTag] = struct{}{}
	}

	return &Classifier{
		apiKey:   opts.APIKey,
		endpoint: fmt.Sprintf("%s/models/%s:generateContent", opts.APIURL, url.PathEscape(opts.Model)),
		model:    opts.Model,
		tags:     tags,
		valid:    valid,
		prompt:   BuildPrompt(tags),
		client:   client,
		logger:   logger.Named("classifier"),
	}
}

// Model is the model name recorded against token usage
func (c *Classifier) Model() string {
	return c.model
}

// Tags returns the configured tag set
func (c *Classifier) Tags() []Tag {
	return c.tags
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Classify returns a result whose tag is always in the tag set. An error is
// returned only when the model could not be reached at all; bad statuses and
// unusable replies come back as the fallback result.
func (c *Classifier) Classify(ctx context.Context, subject, body string) (models.ClassificationResult, error) {
	payload := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: c.prompt + "\n\n---\n\n" + userPrompt(subject, body)}},
		}},
		GenerationConfig: generationConfig{
			Temperature:     0.1,
			MaxOutputTokens: 256,
		},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(buf))
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("failed to call classification model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		c.logger.Error("Gemini API error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", errBody),
		)
		return fallback(fmt.Sprintf("Classification failed: %d", resp.StatusCode)), nil
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		c.logger.Error("Failed to decode Gemini response", zap.Error(err))
		return fallback("Failed to parse response: " + err.Error()), nil
	}

	usage := tokenUsage(gen)
	text, err := completionText(gen)
	if err != nil {
		c.logger.Error("Failed to parse Gemini response", zap.Error(err))
		res := fallback("Failed to parse response: " + err.Error())
		res.TokenUsage = usage
		return res, nil
	}
	c.logger.Debug("Gemini raw response", zap.String("text", truncateForLog(text)))

	res, err := parseReply(text)
	if err != nil {
		c.logger.Error("Failed to parse Gemini response", zap.Error(err), zap.String("text", truncateForLog(text)))
		res = fallback("Failed to parse response: " + err.Error())
	} else {
		res = repair(res, c.valid)
	}
	res.TokenUsage = usage
	return res, nil
}

func completionText(gen generateResponse) (string, error) {
	if len(gen.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	parts := gen.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", fmt.Errorf("no parts in response")
	}
	return parts[0].Text, nil
}

func tokenUsage(gen generateResponse) *models.TokenUsage {
	if gen.UsageMetadata == nil {
		return nil
	}
	return &models.TokenUsage{
		Input:  gen.UsageMetadata.PromptTokenCount,
		Output: gen.UsageMetadata.CandidatesTokenCount,
		Total:  gen.UsageMetadata.TotalTokenCount,
	}
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

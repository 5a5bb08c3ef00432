package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type geminiCall struct {
	Path   string
	APIKey string
	Body   generateRequest
}

func newTestClassifier(t *testing.T, status int, response string) (*Classifier, *[]geminiCall) {
	t.Helper()
	var calls []geminiCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := geminiCall{Path: r.URL.Path, APIKey: r.Header.Get("x-goog-api-key")}
		_ = json.NewDecoder(r.Body).Decode(&call.Body)
		calls = append(calls, call)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	c := New(Options{
		APIKey:     "key-1",
		APIURL:     srv.URL + "/v1beta",
		Model:      "gemini-2.0-flash-lite",
		HTTPClient: srv.Client(),
	})
	return c, &calls
}

func completion(text string, withUsage bool) string {
	resp := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
	if withUsage {
		resp["usageMetadata"] = map[string]any{
			"promptTokenCount":     812,
			"candidatesTokenCount": 31,
			"totalTokenCount":      843,
		}
	}
	buf, _ := json.Marshal(resp)
	return string(buf)
}

func TestClassify_Success(t *testing.T) {
	c, calls := newTestClassifier(t, http.StatusOK,
		completion(`{"classification": "finance-fees", "confidence": 0.92, "reason": "asks for a statement"}`, true))

	res, err := c.Classify(context.Background(), "Statement", "Please send my fee statement")
	require.NoError(t, err)
	assert.Equal(t, "finance-fees", res.Classification)
	assert.Equal(t, 0.92, res.Confidence)
	assert.Equal(t, "asks for a statement", res.Reason)
	require.NotNil(t, res.TokenUsage)
	assert.Equal(t, 812, res.TokenUsage.Input)
	assert.Equal(t, 31, res.TokenUsage.Output)
	assert.Equal(t, 843, res.TokenUsage.Total)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash-lite:generateContent", call.Path)
	assert.Equal(t, "key-1", call.APIKey)
	assert.Equal(t, 0.1, call.Body.GenerationConfig.Temperature)
	assert.Equal(t, 256, call.Body.GenerationConfig.MaxOutputTokens)
	require.Len(t, call.Body.Contents, 1)
	text := call.Body.Contents[0].Parts[0].Text
	assert.Contains(t, text, "SUBJECT: Statement")
	assert.Contains(t, text, "Please send my fee statement")
}

func TestClassify_BodyTruncated(t *testing.T) {
	c, calls := newTestClassifier(t, http.StatusOK, completion(`{"classification": "general", "confidence": 0.1, "reason": "x"}`, false))

	body := strings.Repeat("a", MaxBodyChars) + "TAIL"
	_, err := c.Classify(context.Background(), "s", body)
	require.NoError(t, err)
	assert.NotContains(t, (*calls)[0].Body.Contents[0].Parts[0].Text, "TAIL")
}

func TestClassify_MalformedReplyIsExtracted(t *testing.T) {
	raw := "Sure! ```json\n{\"classification\": \"finance-payment\", \"confidence\": 0.8, \"reason\": \"fees\"}\n```"
	c, _ := newTestClassifier(t, http.StatusOK, completion(raw, false))

	res, err := c.Classify(context.Background(), "POP", "attached")
	require.NoError(t, err)
	assert.Equal(t, "finance-payment", res.Classification)
	assert.Equal(t, 0.8, res.Confidence)
	assert.Equal(t, "fees", res.Reason)
	assert.Nil(t, res.TokenUsage)
}

func TestClassify_UnknownTagRepaired(t *testing.T) {
	c, _ := newTestClassifier(t, http.StatusOK,
		completion(`{"classification": "billing", "confidence": 0.9, "reason": "money"}`, true))

	res, err := c.Classify(context.Background(), "s", "b")
	require.NoError(t, err)
	assert.Equal(t, FallbackTag, res.Classification)
	assert.InDelta(t, 0.45, res.Confidence, 1e-9)
	assert.NotNil(t, res.TokenUsage)
}

func TestClassify_Fallbacks(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		response   string
		wantReason string
		wantUsage  bool
	}{
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			response:   `{"error": {"message": "boom"}}`,
			wantReason: "Classification failed: 500",
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			response:   `{}`,
			wantReason: "Classification failed: 429",
		},
		{
			name:       "no candidates",
			status:     http.StatusOK,
			response:   `{"candidates": []}`,
			wantReason: "Failed to parse response: no candidates in response",
		},
		{
			name:       "not json body",
			status:     http.StatusOK,
			response:   `<html>`,
			wantReason: "Failed to parse response",
		},
		{
			name:       "prose only",
			status:     http.StatusOK,
			response:   completion("This looks like a fees question.", true),
			wantReason: "Failed to parse response",
			wantUsage:  true,
		},
		{
			name:       "missing keys",
			status:     http.StatusOK,
			response:   completion(`{"classification": "registration"}`, false),
			wantReason: "Failed to parse response: missing keys",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClassifier(t, tt.status, tt.response)
			res, err := c.Classify(context.Background(), "s", "b")
			require.NoError(t, err)
			assert.Equal(t, FallbackTag, res.Classification)
			assert.Zero(t, res.Confidence)
			assert.True(t, strings.HasPrefix(res.Reason, tt.wantReason), res.Reason)
			assert.Equal(t, tt.wantUsage, res.TokenUsage != nil)
		})
	}
}

func TestClassify_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(Options{APIURL: srv.URL, Model: "m"})

	_, err := c.Classify(context.Background(), "s", "b")
	assert.Error(t, err)
}

func TestNew_AddsFallbackTag(t *testing.T) {
	c := New(Options{Tags: []Tag{{Name: "only", Description: "d"}}})
	names := []string{}
	for _, tag := range c.Tags() {
		names = append(names, tag.Name)
	}
	assert.Equal(t, []string{"only", FallbackTag}, names)
}

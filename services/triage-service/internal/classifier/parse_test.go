package classifier

import (
	"testing"

	"github.com/stoik/triage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare object",
			in:   `{"classification": "registration"}`,
			want: `{"classification": "registration"}`,
		},
		{
			name: "fenced with language",
			in:   "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "fenced without closing fence",
			in:   "```\n{\"a\": 1}",
			want: `{"a": 1}`,
		},
		{
			name: "prose around object",
			in:   "Sure! ```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "fence on one line",
			in:   "```json {\"a\": 1}```",
			want: `{"a": 1}`,
		},
		{
			name: "closing fence on the object line",
			in:   "```json\n{\"a\": 1}```",
			want: `{"a": 1}`,
		},
		{
			name: "no braces",
			in:   "I cannot help with that",
			want: "I cannot help with that",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

func TestParseReply_MalformedWrapper(t *testing.T) {
	raw := "Sure! ```json\n{\"classification\": \"finance-payment\", \"confidence\": 0.8, \"reason\": \"fees\"}\n```"

	res, err := parseReply(raw)
	require.NoError(t, err)
	assert.Equal(t, "finance-payment", res.Classification)
	assert.Equal(t, 0.8, res.Confidence)
	assert.Equal(t, "fees", res.Reason)
}

func TestParseReply_OneLineFence(t *testing.T) {
	res, err := parseReply("```json {\"classification\": \"registration\", \"confidence\": 0.9, \"reason\": \"enrol\"}```")
	require.NoError(t, err)
	assert.Equal(t, "registration", res.Classification)
	assert.Equal(t, 0.9, res.Confidence)
}

func TestParseReply_ShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "not json", in: "no idea"},
		{name: "missing reason", in: `{"classification": "registration", "confidence": 0.9}`},
		{name: "missing confidence", in: `{"classification": "registration", "reason": "x"}`},
		{name: "confidence as string", in: `{"classification": "registration", "confidence": "high", "reason": "x"}`},
		{name: "classification as number", in: `{"classification": 3, "confidence": 0.5, "reason": "x"}`},
		{name: "array", in: `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseReply(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestRepair(t *testing.T) {
	valid := map[string]struct{}{"registration": {}, FallbackTag: {}}

	tests := []struct {
		name     string
		in       models.ClassificationResult
		wantTag  string
		wantConf float64
	}{
		{
			name:     "valid tag untouched",
			in:       models.ClassificationResult{Classification: "registration", Confidence: 0.9},
			wantTag:  "registration",
			wantConf: 0.9,
		},
		{
			name:     "unknown tag halves confidence",
			in:       models.ClassificationResult{Classification: "finance", Confidence: 0.9},
			wantTag:  FallbackTag,
			wantConf: 0.45,
		},
		{
			name:     "unknown tag floor",
			in:       models.ClassificationResult{Classification: "finance", Confidence: 0.2},
			wantTag:  FallbackTag,
			wantConf: 0.3,
		},
		{
			name:     "confidence clamped",
			in:       models.ClassificationResult{Classification: "registration", Confidence: 7},
			wantTag:  "registration",
			wantConf: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repair(tt.in, valid)
			assert.Equal(t, tt.wantTag, got.Classification)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
		})
	}
}

func TestRepair_ReasonKeepsOriginal(t *testing.T) {
	got := repair(models.ClassificationResult{Classification: "finance", Confidence: 0.9, Reason: "fees"}, map[string]struct{}{FallbackTag: {}})
	assert.Contains(t, got.Reason, "Invalid tag corrected to general")
	assert.Contains(t, got.Reason, "finance")
	assert.Contains(t, got.Reason, "fees")
}

func TestBuildPrompt(t *testing.T) {
	tags := DefaultTags()
	prompt := BuildPrompt(tags)

	for _, tag := range tags {
		assert.Contains(t, prompt, tag.Name)
	}
	assert.Contains(t, prompt, `"classification"`)
	assert.Contains(t, prompt, `"confidence"`)
	assert.Contains(t, prompt, `"reason"`)
	assert.Contains(t, prompt, "-----Original Message-----")
	assert.Contains(t, prompt, "**FINANCE-FEES** examples:")
	assert.Contains(t, prompt, `"Error C-LS-1001"`)
}

func TestDefaultTagsContainFallback(t *testing.T) {
	seen := map[string]bool{}
	for _, tag := range DefaultTags() {
		assert.False(t, seen[tag.Name], "duplicate tag %s", tag.Name)
		seen[tag.Name] = true
		assert.NotEmpty(t, tag.Description)
	}
	assert.True(t, seen[FallbackTag])
}

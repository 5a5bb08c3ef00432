package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/stoik/triage/internal/models"
)

type reply struct {
	Classification *string  `json:"classification"`
	Confidence     *float64 `json:"confidence"`
	Reason         *string  `json:"reason"`
}

// extractJSON strips code fences and any prose around the first JSON object
func extractJSON(text string) string {
	raw := strings.TrimSpace(text)
	text = raw
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) > 1 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[1 : len(lines)-1]
		} else {
			lines = lines[1:]
		}
		text = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	// a one-line fence leaves nothing behind
	if !strings.Contains(text, "{") {
		text = raw
	}

	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start != -1 && end > start {
			text = text[start : end+1]
		}
	}
	return text
}

// parseReply decodes the completion text into a result. Every key must be
// present with the right type.
func parseReply(text string) (models.ClassificationResult, error) {
	var r reply
	if err := json.Unmarshal([]byte(extractJSON(text)), &r); err != nil {
		return models.ClassificationResult{}, err
	}

	var missing []string
	if r.Classification == nil {
		missing = append(missing, "classification")
	}
	if r.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if r.Reason == nil {
		missing = append(missing, "reason")
	}
	if len(missing) > 0 {
		return models.ClassificationResult{}, fmt.Errorf("missing keys: %s", strings.Join(missing, ", "))
	}

	return models.ClassificationResult{
		Classification: strings.TrimSpace(*r.Classification),
		Confidence:     *r.Confidence,
		Reason:         *r.Reason,
	}, nil
}

// repair forces the result into the tag set
func repair(res models.ClassificationResult, valid map[string]struct{}) models.ClassificationResult {
	if _, ok := valid[res.Classification]; !ok {
		res.Reason = fmt.Sprintf("Invalid tag corrected to %s. Original: %s (%s)", FallbackTag, res.Classification, res.Reason)
		res.Classification = FallbackTag
		res.Confidence = math.Max(0.3, res.Confidence*0.5)
	}
	res.Confidence = math.Min(1, math.Max(0, res.Confidence))
	return res
}

func fallback(reason string) models.ClassificationResult {
	return models.ClassificationResult{
		Classification: FallbackTag,
		Confidence:     0,
		Reason:         reason,
	}
}

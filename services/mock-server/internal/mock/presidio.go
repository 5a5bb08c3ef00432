package mock

import (
	"net/http"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

type entity struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

type recognizer struct {
	Name     string `json:"name"`
	Patterns []struct {
		Name  string  `json:"name"`
		Regex string  `json:"regex"`
		Score float64 `json:"score"`
	} `json:"patterns"`
	SupportedEntity string `json:"supported_entity"`
}

type builtinRecognizer struct {
	entityType string
	pattern    *regexp.Regexp
	score      float64
}

var builtinRecognizers = []builtinRecognizer{
	{"EMAIL_ADDRESS", regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), 1.0},
	{"PHONE_NUMBER", regexp.MustCompile(`(\+27|0)[ -]?\d{2}[ -]?\d{3}[ -]?\d{4}\b`), 0.75},
}

// handleAnalyze detects entities with a few built-in patterns plus any
// ad-hoc recognizers in the request. Offsets are in characters.
func (m *Mock) handleAnalyze(c *gin.Context) {
	var req struct {
		Text             string       `json:"text"`
		Language         string       `json:"language"`
		Entities         []string     `json:"entities"`
		ScoreThreshold   float64      `json:"score_threshold"`
		AdHocRecognizers []recognizer `json:"ad_hoc_recognizers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Language == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No language provided"})
		return
	}

	wanted := func(entityType string) bool {
		if len(req.Entities) == 0 {
			return true
		}
		for _, e := range req.Entities {
			if e == entityType {
				return true
			}
		}
		return false
	}

	found := []entity{}
	add := func(entityType string, re *regexp.Regexp, score float64) {
		if !wanted(entityType) || score < req.ScoreThreshold {
			return
		}
		for _, loc := range re.FindAllStringIndex(req.Text, -1) {
			found = append(found, entity{
				EntityType: entityType,
				Start:      utf8.RuneCountInString(req.Text[:loc[0]]),
				End:        utf8.RuneCountInString(req.Text[:loc[1]]),
				Score:      score,
			})
		}
	}

	for _, r := range builtinRecognizers {
		add(r.entityType, r.pattern, r.score)
	}
	for _, r := range req.AdHocRecognizers {
		for _, p := range r.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pattern " + p.Name + ": " + err.Error()})
				return
			}
			add(r.SupportedEntity, re, p.Score)
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Start < found[j].Start })
	c.JSON(http.StatusOK, found)
}

// handleAnonymize replaces every span with <ENTITY_TYPE>. Overlapping spans
// keep the one that starts first.
func (m *Mock) handleAnonymize(c *gin.Context) {
	var req struct {
		Text            string   `json:"text"`
		AnalyzerResults []entity `json:"analyzer_results"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"text":  anonymize(req.Text, req.AnalyzerResults),
		"items": req.AnalyzerResults,
	})
}

func anonymize(text string, spans []entity) string {
	runes := []rune(text)
	sorted := append([]entity{}, spans...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []rune
	pos := 0
	for _, s := range sorted {
		if s.Start < pos || s.End > len(runes) || s.Start >= s.End {
			continue
		}
		out = append(out, runes[pos:s.Start]...)
		out = append(out, []rune("<"+s.EntityType+">")...)
		pos = s.End
	}
	out = append(out, runes[pos:]...)
	return string(out)
}

package redaction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Options configures the Presidio analyzer/anonymizer pair
type Options struct {
	Enabled        bool
	AnalyzerURL    string
	AnonymizerURL  string
	ScoreThreshold float64
	Entities       []string
	TrustedDomains []string // e.g. "example.ac.za"; addresses at these domains are never masked
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// Result is the outcome of one redaction call. When Succeeded is false,
// MaskedText is the unmodified input.
type Result struct {
	MaskedText     string
	EntitiesFound  int
	EntitiesMasked int
	Succeeded      bool
}

// EmailFields are the parts of a message that get redacted
type EmailFields struct {
	Subject     string
	Body        string
	FromName    string
	FromAddress string
}

// EmailResult holds the redacted fields and counts summed over every field
type EmailResult struct {
	EmailFields
	EntitiesFound  int
	EntitiesMasked int
	Succeeded      bool
}

// Redactor masks PII through Presidio. It never returns an error: every
// failure degrades to the original text.
type Redactor struct {
	opts    Options
	domains []string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func New(opts Options) *Redactor {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("redaction")

	domains := make([]string, 0, len(opts.TrustedDomains))
	for _, d := range opts.TrustedDomains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d != "" {
			domains = append(domains, "@"+d)
		}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "presidio",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Redactor{
		opts:    opts,
		domains: domains,
		client:  client,
		breaker: breaker,
		logger:  logger,
	}
}

// Enabled reports whether redaction is switched on
func (r *Redactor) Enabled() bool {
	return r.opts.Enabled
}

// Redact masks the PII in text. No entities found counts as success.
func (r *Redactor) Redact(ctx context.Context, text string) Result {
	result := Result{MaskedText: text}
	if !r.opts.Enabled || strings.TrimSpace(text) == "" {
		return result
	}

	entities, err := r.analyze(ctx, text)
	if err != nil {
		r.logger.Warn("Presidio analyzer failed (soft fail)", zap.Error(err))
		return result
	}
	result.EntitiesFound = len(entities)
	if len(entities) == 0 {
		result.Succeeded = true
		return result
	}

	filtered := r.filterTrusted(text, entities)
	if len(filtered) == 0 {
		result.Succeeded = true
		return result
	}

	masked, err := r.anonymize(ctx, text, filtered)
	if err != nil {
		r.logger.Warn("Presidio anonymizer failed (soft fail)", zap.Error(err))
		return result
	}

	result.MaskedText = masked
	result.EntitiesMasked = len(filtered)
	result.Succeeded = true
	return result
}

// RedactEmail redacts each non-empty field independently. Succeeded is
// false if any attempted field fell back to its original text.
func (r *Redactor) RedactEmail(ctx context.Context, fields EmailFields) EmailResult {
	out := EmailResult{EmailFields: fields}
	if !r.opts.Enabled {
		return out
	}

	out.Succeeded = true
	apply := func(dst *string) {
		if strings.TrimSpace(*dst) == "" {
			return
		}
		res := r.Redact(ctx, *dst)
		*dst = res.MaskedText
		out.EntitiesFound += res.EntitiesFound
		out.EntitiesMasked += res.EntitiesMasked
		if !res.Succeeded {
			out.Succeeded = false
		}
	}
	apply(&out.Subject)
	apply(&out.Body)
	apply(&out.FromName)
	apply(&out.FromAddress)

	if out.EntitiesMasked > 0 {
		r.logger.Info("Email PII masked",
			zap.Int("masked", out.EntitiesMasked),
			zap.Int("detected", out.EntitiesFound),
		)
	}
	return out
}

// filterTrusted drops EMAIL_ADDRESS spans that belong to a trusted domain.
// Offsets are in code points, as returned by the analyzer.
func (r *Redactor) filterTrusted(text string, entities []Entity) []Entity {
	if len(r.domains) == 0 {
		return entities
	}
	runes := []rune(text)
	filtered := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if e.EntityType == "EMAIL_ADDRESS" && e.Start >= 0 && e.End <= len(runes) && e.Start < e.End {
			if r.isTrusted(string(runes[e.Start:e.End])) {
				continue
			}
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func (r *Redactor) isTrusted(address string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	for _, d := range r.domains {
		if strings.HasSuffix(address, d) {
			return true
		}
	}
	return false
}

func (r *Redactor) analyze(ctx context.Context, text string) ([]Entity, error) {
	payload := analyzeRequest{
		Text:             text,
		Language:         "en",
		Entities:         r.opts.Entities,
		ScoreThreshold:   r.opts.ScoreThreshold,
		AdHocRecognizers: []Recognizer{NationalIDRecognizer},
	}
	var entities []Entity
	if err := r.post(ctx, r.opts.AnalyzerURL+"/analyze", payload, &entities); err != nil {
		return nil, fmt.Errorf("failed to analyze text: %w", err)
	}
	return entities, nil
}

func (r *Redactor) anonymize(ctx context.Context, text string, entities []Entity) (string, error) {
	payload := anonymizeRequest{Text: text, AnalyzerResults: entities}
	var resp anonymizeResponse
	if err := r.post(ctx, r.opts.AnonymizerURL+"/anonymize", payload, &resp); err != nil {
		return "", fmt.Errorf("failed to anonymize text: %w", err)
	}
	if resp.Text == nil {
		return "", errors.New("anonymizer response missing text")
	}
	return *resp.Text, nil
}

// post runs one Presidio call through the circuit breaker
func (r *Redactor) post(ctx context.Context, url string, payload, out any) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})
	return err
}

// Settings is the read-only view served by the admin endpoint
type Settings struct {
	Enabled        bool     `json:"enabled"`
	AnalyzerURL    string   `json:"analyzer_url"`
	AnonymizerURL  string   `json:"anonymizer_url"`
	ScoreThreshold float64  `json:"score_threshold"`
	Entities       []string `json:"entities"`
	TrustedDomains []string `json:"trusted_domains"`
	CircuitState   string   `json:"circuit_state"`
}

func (r *Redactor) Settings() Settings {
	return Settings{
		Enabled:        r.opts.Enabled,
		AnalyzerURL:    r.opts.AnalyzerURL,
		AnonymizerURL:  r.opts.AnonymizerURL,
		ScoreThreshold: r.opts.ScoreThreshold,
		Entities:       r.opts.Entities,
		TrustedDomains: r.opts.TrustedDomains,
		CircuitState:   r.breaker.State().String(),
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stoik/triage/internal/models"
	"github.com/stoik/triage/services/triage-service/internal/logging"
	"github.com/stoik/triage/services/triage-service/internal/metrics"
	"github.com/stoik/triage/services/triage-service/internal/provider"
	"github.com/stoik/triage/services/triage-service/internal/redaction"
	"github.com/stoik/triage/services/triage-service/internal/store"
	"github.com/stoik/triage/services/triage-service/internal/textutil"
	"go.uber.org/zap"
)

// OperationClassification is the usage operation recorded for each classify call
const OperationClassification = "classification"

// Store is the part of the persistence layer the pipeline writes through
type Store interface {
	Exists(ctx context.Context, messageID string) (bool, error)
	Insert(ctx context.Context, email *models.ProcessedEmail) (int64, error)
	InsertUsage(ctx context.Context, usage *models.LLMUsageRecord) error
}

type Mailbox interface {
	FetchMessage(ctx context.Context, messageID string) (*models.ProviderMessage, error)
	ApplyCategory(ctx context.Context, messageID, category string) bool
}

type Redactor interface {
	Enabled() bool
	RedactEmail(ctx context.Context, fields redaction.EmailFields) redaction.EmailResult
}

type Classifier interface {
	Model() string
	Classify(ctx context.Context, subject, body string) (models.ClassificationResult, error)
}

// Outcome is the terminal state of one notification entry
type Outcome string

const (
	OutcomeProcessed           Outcome = "processed"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomeRejectedClientState Outcome = "rejected_client_state"
	OutcomeIgnoredChangeType   Outcome = "ignored_change_type"
	OutcomeMissingMessageID    Outcome = "missing_message_id"
	OutcomeMalformed           Outcome = "malformed_entry"
	OutcomeMessageGone         Outcome = "message_gone"
	OutcomeFailed              Outcome = "failed"
)

// Options wires the pipeline collaborators
type Options struct {
	Store       Store
	Mailbox     Mailbox
	Redactor    Redactor
	Classifier  Classifier
	ClientState string
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Service runs the per-message procedure: fetch, redact, classify, tag, persist
type Service struct {
	store       Store
	mailbox     Mailbox
	redactor    Redactor
	classifier  Classifier
	clientState string
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       opts.Store,
		mailbox:     opts.Mailbox,
		redactor:    opts.Redactor,
		classifier:  opts.Classifier,
		clientState: opts.ClientState,
		metrics:     opts.Metrics,
		logger:      logger.Named("pipeline"),
	}
}

// ProcessMessage takes one message id through to a persisted row. A message
// already in the store is a no-op. Only a committed insert marks the message
// as done, so a failure at any earlier step leaves it to the next delivery.
func (s *Service) ProcessMessage(ctx context.Context, messageID string) (Outcome, error) {
	started := time.Now()
	log := s.logger.With(zap.String("message_id", logging.ShortID(messageID)))

	exists, err := s.store.Exists(ctx, messageID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to check for existing email: %w", err)
	}
	if exists {
		log.Info("Email already processed, skipping")
		return OutcomeDuplicate, nil
	}

	msg, err := s.mailbox.FetchMessage(ctx, messageID)
	if provider.IsNotFound(err) {
		log.Warn("Message deleted before processing")
		return OutcomeMessageGone, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to fetch email: %w", err)
	}
	log.Info("Processing email", zap.String("received_at", msg.ReceivedAt))

	body := textutil.HTMLToText(msg.BodyHTML)
	if body == "" {
		body = msg.BodyPreview
	}

	masked := s.redactor.RedactEmail(ctx, redaction.EmailFields{
		Subject:     msg.Subject,
		Body:        body,
		FromName:    msg.FromName,
		FromAddress: msg.FromAddress,
	})
	switch {
	case masked.Succeeded && masked.EntitiesMasked > 0:
		log.Info("PII masked for classification", zap.Int("entities", masked.EntitiesMasked))
	case !masked.Succeeded && s.redactor.Enabled():
		s.metrics.RedactionFailure()
		log.Warn("Redaction unavailable, classifying unredacted content")
	}

	result, err := s.classifier.Classify(ctx, masked.Subject, masked.Body)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to classify email: %w", err)
	}
	log.Info("Classification",
		zap.String("classification", result.Classification),
		zap.Float64("confidence", result.Confidence),
	)

	label := textutil.CategoryLabel(result.Classification)
	if !s.mailbox.ApplyCategory(ctx, messageID, label) {
		s.metrics.TaggingFailure()
	}

	email := &models.ProcessedEmail{
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		Subject:        msg.Subject,
		Snippet:        msg.BodyPreview,
		FromAddress:    msg.FromAddress,
		FromName:       msg.FromName,
		Classification: result.Classification,
		Confidence:     result.Confidence,
		Reason:         result.Reason,
		BodyText:       masked.Body,
		ReceivedAt:     msg.ReceivedAt,
	}
	if email.Reason == "" {
		email.Reason = "No reason"
	}

	emailID, err := s.store.Insert(ctx, email)
	if errors.Is(err, store.ErrAlreadyExists) {
		log.Info("Email persisted by a concurrent delivery, discarding")
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to save email: %w", err)
	}

	if result.TokenUsage != nil {
		usage := &models.LLMUsageRecord{
			EmailID:      emailID,
			Model:        s.classifier.Model(),
			Operation:    OperationClassification,
			InputTokens:  result.TokenUsage.Input,
			OutputTokens: result.TokenUsage.Output,
			TotalTokens:  result.TokenUsage.Total,
		}
		if err := s.store.InsertUsage(ctx, usage); err != nil {
			log.Warn("Failed to save llm usage", zap.Error(err))
		}
	}

	s.metrics.Classification(result.Classification)
	s.metrics.ObserveProcessing(started)
	log.Info("Email processed successfully", zap.Int64("email_id", emailID))
	return OutcomeProcessed, nil
}

package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stoik/triage/internal/models"
	"github.com/stoik/triage/services/triage-service/internal/textutil"
)

// ErrAlreadyExists is returned when a row for the message id is already committed
var ErrAlreadyExists = errors.New("email already processed")

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

const (
	NoSubject           = "(No subject)"
	MaxSnippetLength    = 500
	MaxBodyLength       = 10000
	DefaultRecentLimit  = 50
	MaxRecentLimit      = 200
	DefaultConversation = 100
)

// Store is the relational persistence contract. Exists only reflects
// committed rows; the unique index on message_id is what serializes racing
// deliveries, and Insert reports the loser with ErrAlreadyExists.
type Store interface {
	Migrate(ctx context.Context) error
	Exists(ctx context.Context, messageID string) (bool, error)
	Insert(ctx context.Context, email *models.ProcessedEmail) (int64, error)
	InsertUsage(ctx context.Context, usage *models.LLMUsageRecord) error
	GetByMessageID(ctx context.Context, messageID string) (*models.ProcessedEmail, error)
	RecentEmails(ctx context.Context, limit int) ([]models.ProcessedEmail, error)
	ClassificationCounts(ctx context.Context) ([]models.ClassificationCount, error)
	ConversationEmails(ctx context.Context, conversationID string) ([]models.ProcessedEmail, error)
	ConversationSummaries(ctx context.Context, limit int) ([]models.ConversationSummary, error)
	UsageSummaries(ctx context.Context) ([]models.UsageSummary, error)
	Close() error
}

// normalize applies the storage rules shared by both drivers: placeholder
// subject, bounded snippet/body and a UTC processing timestamp.
func normalize(e *models.ProcessedEmail, now time.Time) {
	if strings.TrimSpace(e.Subject) == "" {
		e.Subject = NoSubject
	}
	e.Snippet = textutil.Truncate(e.Snippet, MaxSnippetLength)
	e.BodyText = textutil.Truncate(e.BodyText, MaxBodyLength)
	e.ProcessedAt = now.UTC()
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stoik/triage/internal/models"
)

// SQLiteStore implements Store on sqlx + go-sqlite3 for single-node deployments
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, messageID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM emails WHERE message_id = ?`, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to check for existing email: %w", err)
	}
	return count > 0, nil
}

// Insert creates the row; a duplicate message id is ignored and reported
func (s *SQLiteStore) Insert(ctx context.Context, email *models.ProcessedEmail) (int64, error) {
	normalize(email, s.now())

	query := `
		INSERT OR IGNORE INTO emails (message_id, conversation_id, subject, snippet, from_address, from_name,
			classification, confidence, reason, body_text, received_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		email.MessageID,
		email.ConversationID,
		email.Subject,
		email.Snippet,
		email.FromAddress,
		email.FromName,
		email.Classification,
		email.Confidence,
		email.Reason,
		email.BodyText,
		email.ReceivedAt,
		email.ProcessedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert email: %w", err)
	}

	// Check if row was actually inserted (not ignored due to duplicate)
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, ErrAlreadyExists
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	email.ID = id
	return id, nil
}

func (s *SQLiteStore) InsertUsage(ctx context.Context, usage *models.LLMUsageRecord) error {
	usage.CreatedAt = s.now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_usage (email_id, model, operation, input_tokens, output_tokens, total_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		usage.EmailID,
		usage.Model,
		usage.Operation,
		usage.InputTokens,
		usage.OutputTokens,
		usage.TotalTokens,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert llm usage: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	usage.ID = id
	return nil
}

func (s *SQLiteStore) GetByMessageID(ctx context.Context, messageID string) (*models.ProcessedEmail, error) {
	var email models.ProcessedEmail
	err := s.db.GetContext(ctx, &email, `SELECT `+emailColumns+` FROM emails WHERE message_id = ?`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return &email, nil
}

func (s *SQLiteStore) RecentEmails(ctx context.Context, limit int) ([]models.ProcessedEmail, error) {
	limit = clampLimit(limit, DefaultRecentLimit, MaxRecentLimit)
	emails := []models.ProcessedEmail{}
	err := s.db.SelectContext(ctx, &emails,
		`SELECT `+emailColumns+` FROM emails ORDER BY processed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent emails: %w", err)
	}
	return emails, nil
}

func (s *SQLiteStore) ConversationEmails(ctx context.Context, conversationID string) ([]models.ProcessedEmail, error) {
	emails := []models.ProcessedEmail{}
	err := s.db.SelectContext(ctx, &emails,
		`SELECT `+emailColumns+` FROM emails WHERE conversation_id = ? ORDER BY received_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation emails: %w", err)
	}
	return emails, nil
}

func (s *SQLiteStore) ClassificationCounts(ctx context.Context) ([]models.ClassificationCount, error) {
	counts := []models.ClassificationCount{}
	err := s.db.SelectContext(ctx, &counts, `
		SELECT classification, COUNT(*) AS count
		FROM emails
		GROUP BY classification
		ORDER BY count DESC, classification ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get classification stats: %w", err)
	}
	return counts, nil
}

func (s *SQLiteStore) ConversationSummaries(ctx context.Context, limit int) ([]models.ConversationSummary, error) {
	limit = clampLimit(limit, DefaultConversation, DefaultConversation)

	var rows []struct {
		ConversationID  string `db:"conversation_id"`
		MessageCount    int64  `db:"message_count"`
		Classifications string `db:"classifications"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT conversation_id,
			COUNT(*) AS message_count,
			GROUP_CONCAT(DISTINCT classification) AS classifications
		FROM emails
		WHERE conversation_id != ''
		GROUP BY conversation_id
		ORDER BY message_count DESC, conversation_id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation stats: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		tags := []string{}
		if r.Classifications != "" {
			tags = strings.Split(r.Classifications, ",")
			sort.Strings(tags)
		}
		summaries = append(summaries, models.ConversationSummary{
			ConversationID:  r.ConversationID,
			MessageCount:    r.MessageCount,
			Classifications: tags,
		})
	}
	return summaries, nil
}

func (s *SQLiteStore) UsageSummaries(ctx context.Context) ([]models.UsageSummary, error) {
	summaries := []models.UsageSummary{}
	if err := s.db.SelectContext(ctx, &summaries, usageSummaryQuery); err != nil {
		return nil, fmt.Errorf("failed to get llm usage stats: %w", err)
	}
	return summaries, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stoik/triage/internal/models"
)

const emailColumns = `id, message_id, conversation_id, subject, snippet, from_address, from_name,
	classification, confidence, reason, body_text, received_at, processed_at`

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore wraps an open pool; Close releases it
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM emails WHERE message_id = $1)`, messageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for existing email: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Insert(ctx context.Context, email *models.ProcessedEmail) (int64, error) {
	normalize(email, s.now())

	query := `
		INSERT INTO emails (message_id, conversation_id, subject, snippet, from_address, from_name,
			classification, confidence, reason, body_text, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id
	`

	var id int64
	err := s.pool.QueryRow(ctx, query,
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
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// ON CONFLICT DO NOTHING returns no row for the losing duplicate
		return 0, ErrAlreadyExists
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert email: %w", err)
	}

	email.ID = id
	return id, nil
}

func (s *PostgresStore) InsertUsage(ctx context.Context, usage *models.LLMUsageRecord) error {
	query := `
		INSERT INTO llm_usage (email_id, model, operation, input_tokens, output_tokens, total_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	usage.CreatedAt = s.now().UTC()
	err := s.pool.QueryRow(ctx, query,
		usage.EmailID,
		usage.Model,
		usage.Operation,
		usage.InputTokens,
		usage.OutputTokens,
		usage.TotalTokens,
		usage.CreatedAt,
	).Scan(&usage.ID)
	if err != nil {
		return fmt.Errorf("failed to insert llm usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByMessageID(ctx context.Context, messageID string) (*models.ProcessedEmail, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+emailColumns+` FROM emails WHERE message_id = $1`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	email, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[models.ProcessedEmail])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return &email, nil
}

func (s *PostgresStore) RecentEmails(ctx context.Context, limit int) ([]models.ProcessedEmail, error) {
	limit = clampLimit(limit, DefaultRecentLimit, MaxRecentLimit)
	return s.queryEmails(ctx,
		`SELECT `+emailColumns+` FROM emails ORDER BY processed_at DESC, id DESC LIMIT $1`, limit)
}

func (s *PostgresStore) ConversationEmails(ctx context.Context, conversationID string) ([]models.ProcessedEmail, error) {
	return s.queryEmails(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE conversation_id = $1 ORDER BY received_at ASC, id ASC`, conversationID)
}

func (s *PostgresStore) queryEmails(ctx context.Context, query string, args ...any) ([]models.ProcessedEmail, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	emails, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.ProcessedEmail])
	if err != nil {
		return nil, fmt.Errorf("failed to scan emails: %w", err)
	}
	return emails, nil
}

func (s *PostgresStore) ClassificationCounts(ctx context.Context) ([]models.ClassificationCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT classification, COUNT(*) AS count
		FROM emails
		GROUP BY classification
		ORDER BY count DESC, classification ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get classification stats: %w", err)
	}
	counts, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.ClassificationCount])
	if err != nil {
		return nil, fmt.Errorf("failed to scan classification stats: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) ConversationSummaries(ctx context.Context, limit int) ([]models.ConversationSummary, error) {
	limit = clampLimit(limit, DefaultConversation, DefaultConversation)
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id,
			COUNT(*) AS message_count,
			array_agg(DISTINCT classification ORDER BY classification) AS classifications
		FROM emails
		WHERE conversation_id <> ''
		GROUP BY conversation_id
		ORDER BY message_count DESC, conversation_id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation stats: %w", err)
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var cs models.ConversationSummary
		if err := rows.Scan(&cs.ConversationID, &cs.MessageCount, &cs.Classifications); err != nil {
			return nil, fmt.Errorf("failed to scan conversation stats: %w", err)
		}
		summaries = append(summaries, cs)
	}
	return summaries, rows.Err()
}

func (s *PostgresStore) UsageSummaries(ctx context.Context) ([]models.UsageSummary, error) {
	rows, err := s.pool.Query(ctx, usageSummaryQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to get llm usage stats: %w", err)
	}
	summaries, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.UsageSummary])
	if err != nil {
		return nil, fmt.Errorf("failed to scan llm usage stats: %w", err)
	}
	return summaries, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const usageSummaryQuery = `
	SELECT model, operation,
		COUNT(*) AS calls,
		COALESCE(SUM(input_tokens), 0) AS input_tokens,
		COALESCE(SUM(output_tokens), 0) AS output_tokens,
		COALESCE(SUM(total_tokens), 0) AS total_tokens
	FROM llm_usage
	GROUP BY model, operation
	ORDER BY total_tokens DESC, model ASC`

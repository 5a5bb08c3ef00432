//go:build integration

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stoik/triage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: TRIAGE_TEST_DATABASE_URL=postgres://... go test -tags integration ./...

var schemaCounter uint64

// newPostgresTestStore points a fresh store at its own schema, dropped on cleanup
func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TRIAGE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TRIAGE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(admin.Close)

	schema := fmt.Sprintf("triage_it_%d_%d", time.Now().UnixNano(), atomic.AddUint64(&schemaCounter, 1))
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)

	s := NewPostgresStore(pool)
	base := time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC)
	var tick int64
	s.now = func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Second)
	}

	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore_MigrateIsRepeatable(t *testing.T) {
	s := newPostgresTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestPostgresStore_InsertAndDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)

	exists, err := s.Exists(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, exists)

	id, err := s.Insert(ctx, email("msg-1", "conv-1", "finance-fees", "2025-11-03T07:00:00Z"))
	require.NoError(t, err)
	assert.Positive(t, id)

	exists, err = s.Exists(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = s.Insert(ctx, email("msg-1", "conv-1", "general", "2025-11-03T07:00:00Z"))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := s.GetByMessageID(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "finance-fees", got.Classification)
	assert.Equal(t, "Subject msg-1", got.Subject)

	_, err = s.GetByMessageID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_EmptyReadsAreEmptyLists(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)

	summaries, err := s.ConversationSummaries(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, summaries)
	out, err := json.Marshal(summaries)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(out))

	recent, err := s.RecentEmails(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, recent)

	counts, err := s.ClassificationCounts(ctx)
	require.NoError(t, err)
	assert.NotNil(t, counts)

	usage, err := s.UsageSummaries(ctx)
	require.NoError(t, err)
	assert.NotNil(t, usage)
}

func TestPostgresStore_Reads(t *testing.T) {
	ctx := context.Background()
	s := newPostgresTestStore(t)

	rows := []*models.ProcessedEmail{
		email("m1", "c1", "finance-payment", "2025-11-02T08:00:00Z"),
		email("m2", "c1", "finance-fees", "2025-11-01T08:00:00Z"),
		email("m3", "c2", "finance-fees", "2025-11-02T09:00:00Z"),
		email("m4", "c1", "finance-fees", "2025-11-03T08:00:00Z"),
		email("m5", "", "general", "2025-11-03T09:00:00Z"),
	}
	for _, e := range rows {
		id, err := s.Insert(ctx, e)
		require.NoError(t, err)
		require.NoError(t, s.InsertUsage(ctx, &models.LLMUsageRecord{
			EmailID: id, Model: "gemini", Operation: "classification",
			InputTokens: 100, OutputTokens: 10, TotalTokens: 110,
		}))
	}

	recent, err := s.RecentEmails(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "m5", recent[0].MessageID)
	assert.Equal(t, "m4", recent[1].MessageID)

	counts, err := s.ClassificationCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 3)
	assert.Equal(t, "finance-fees", counts[0].Classification)
	assert.Equal(t, int64(3), counts[0].Count)

	conv, err := s.ConversationEmails(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, conv, 3)
	assert.Equal(t, []string{"m2", "m1", "m4"}, []string{conv[0].MessageID, conv[1].MessageID, conv[2].MessageID})

	summaries, err := s.ConversationSummaries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "c1", summaries[0].ConversationID)
	assert.Equal(t, int64(3), summaries[0].MessageCount)
	assert.Equal(t, []string{"finance-fees", "finance-payment"}, summaries[0].Classifications)
	assert.Equal(t, "c2", summaries[1].ConversationID)

	usage, err := s.UsageSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, int64(5), usage[0].Calls)
	assert.Equal(t, int64(550), usage[0].TotalTokens)
}

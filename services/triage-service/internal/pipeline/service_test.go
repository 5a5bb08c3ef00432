package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stoik/triage/internal/models"
	"github.com/stoik/triage/services/triage-service/internal/db"
	"github.com/stoik/triage/services/triage-service/internal/provider"
	"github.com/stoik/triage/services/triage-service/internal/redaction"
	"github.com/stoik/triage/services/triage-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailbox struct {
	messages   map[string]*models.ProviderMessage
	fetchErr   error
	tagResult  bool
	fetched    []string
	categories map[string]string
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: map[string]*models.ProviderMessage{
			"AAMk-1": {
				ID:             "AAMk-1",
				ConversationID: "conv-1",
				Subject:        "Proof of payment",
				BodyHTML:       "<html><body><p>Please find attached my POP.</p><p>Thandi 0825551234</p></body></html>",
				BodyPreview:    "Please find attached my POP.",
				FromAddress:    "thandi@gmail.com",
				FromName:       "Thandi",
				ReceivedAt:     "2025-11-03T07:59:00Z",
			},
		},
		tagResult:  true,
		categories: map[string]string{},
	}
}

func (f *fakeMailbox) FetchMessage(ctx context.Context, messageID string) (*models.ProviderMessage, error) {
	f.fetched = append(f.fetched, messageID)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, errors.New("not found")
	}
	return msg, nil
}

func (f *fakeMailbox) ApplyCategory(ctx context.Context, messageID, category string) bool {
	f.categories[messageID] = category
	return f.tagResult
}

// fakeRedactor masks the phone number in the sample body, or fails
type fakeRedactor struct {
	fail  bool
	calls int
}

func (f *fakeRedactor) Enabled() bool { return true }

func (f *fakeRedactor) RedactEmail(ctx context.Context, fields redaction.EmailFields) redaction.EmailResult {
	f.calls++
	if f.fail {
		return redaction.EmailResult{EmailFields: fields}
	}
	out := redaction.EmailResult{EmailFields: fields, Succeeded: true}
	out.Body = "Please find attached my POP.\n<PERSON> <PHONE_NUMBER>"
	out.EntitiesFound, out.EntitiesMasked = 2, 2
	return out
}

type fakeClassifier struct {
	result   models.ClassificationResult
	err      error
	panics   bool
	subjects []string
	bodies   []string
}

func (f *fakeClassifier) Model() string { return "gemini-test" }

func (f *fakeClassifier) Classify(ctx context.Context, subject, body string) (models.ClassificationResult, error) {
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	if f.panics {
		panic("nil map write")
	}
	return f.result, f.err
}

type fixture struct {
	store      *store.SQLiteStore
	mailbox    *fakeMailbox
	redactor   *fakeRedactor
	classifier *fakeClassifier
	service    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	st := store.NewSQLiteStore(conn)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		store:    st,
		mailbox:  newFakeMailbox(),
		redactor: &fakeRedactor{},
		classifier: &fakeClassifier{result: models.ClassificationResult{
			Classification: "finance-payment",
			Confidence:     0.9,
			Reason:         "proof of payment attached",
			TokenUsage:     &models.TokenUsage{Input: 800, Output: 30, Total: 830},
		}},
	}
	f.service = NewService(Options{
		Store:       st,
		Mailbox:     f.mailbox,
		Redactor:    f.redactor,
		Classifier:  f.classifier,
		ClientState: "state-abc",
	})
	return f
}

func TestProcessMessage_PersistsClassification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	outcome, err := f.service.ProcessMessage(ctx, "AAMk-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	stored, err := f.store.GetByMessageID(ctx, "AAMk-1")
	require.NoError(t, err)
	assert.Equal(t, "finance-payment", stored.Classification)
	assert.Equal(t, 0.9, stored.Confidence)
	assert.Equal(t, "conv-1", stored.ConversationID)
	assert.Equal(t, "Proof of payment", stored.Subject)
	assert.Equal(t, "Please find attached my POP.", stored.Snippet)
	assert.Equal(t, "Please find attached my POP.\n<PERSON> <PHONE_NUMBER>", stored.BodyText)

	assert.Equal(t, "Finance Payment", f.mailbox.categories["AAMk-1"])

	// the classifier only ever sees redacted content
	require.Len(t, f.classifier.bodies, 1)
	assert.NotContains(t, f.classifier.bodies[0], "0825551234")

	usage, err := f.store.UsageSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, "gemini-test", usage[0].Model)
	assert.Equal(t, OperationClassification, usage[0].Operation)
	assert.Equal(t, int64(830), usage[0].TotalTokens)
}

func TestProcessMessage_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.ProcessMessage(ctx, "AAMk-1")
	require.NoError(t, err)

	outcome, err := f.service.ProcessMessage(ctx, "AAMk-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	// second run stops at the existence check
	assert.Len(t, f.mailbox.fetched, 1)
	assert.Equal(t, 1, f.redactor.calls)
	assert.Len(t, f.classifier.subjects, 1)

	recent, err := f.store.RecentEmails(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestProcessMessage_FetchFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mailbox.fetchErr = errors.New("401 unauthorized")

	outcome, err := f.service.ProcessMessage(ctx, "AAMk-1")
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Empty(t, f.classifier.subjects)

	exists, err := f.store.Exists(ctx, "AAMk-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProcessMessage_DeletedBeforeFetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mailbox.fetchErr = fmt.Errorf("fetching: %w", &provider.APIError{Op: "get email", StatusCode: http.StatusNotFound})

	outcome, err := f.service.ProcessMessage(ctx, "AAMk-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMessageGone, outcome)
	assert.Empty(t, f.classifier.subjects)

	exists, err := f.store.Exists(ctx, "AAMk-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProcessMessage_RedactionSoftFailStillPersists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.redactor.fail = true

	outcome, err := f.service.ProcessMessage(ctx, "AAMk-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	require.Len(t, f.classifier.bodies, 1)
	assert.Contains(t, f.classifier.bodies[0], "0825551234")

	exists, err := f.store.Exists(ctx, "AAMk-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestProcessMessage_TaggingFailureIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mailbox.tagResult = false

	outcome, err := f.service.ProcessMessage(ctx, "AAMk-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
}

func TestProcessMessage_ClassifierUnreachable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.classifier.err = errors.New("connection refused")

	outcome, err := f.service.ProcessMessage(ctx, "AAMk-1")
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Empty(t, f.mailbox.categories)

	exists, err := f.store.Exists(ctx, "AAMk-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProcessMessage_NoUsageWithoutMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.classifier.result.TokenUsage = nil

	_, err := f.service.ProcessMessage(ctx, "AAMk-1")
	require.NoError(t, err)

	usage, err := f.store.UsageSummaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, usage)
}

// racingStore reports the message as new, then loses the insert
type racingStore struct {
	usageWrites int
}

func (r *racingStore) Exists(ctx context.Context, messageID string) (bool, error) {
	return false, nil
}

func (r *racingStore) Insert(ctx context.Context, email *models.ProcessedEmail) (int64, error) {
	return 0, store.ErrAlreadyExists
}

func (r *racingStore) InsertUsage(ctx context.Context, usage *models.LLMUsageRecord) error {
	r.usageWrites++
	return nil
}

func TestProcessMessage_RacingDuplicateDiscarded(t *testing.T) {
	f := newFixture(t)
	rs := &racingStore{}
	svc := NewService(Options{
		Store:      rs,
		Mailbox:    f.mailbox,
		Redactor:   f.redactor,
		Classifier: f.classifier,
	})

	outcome, err := svc.ProcessMessage(context.Background(), "AAMk-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Zero(t, rs.usageWrites)
}

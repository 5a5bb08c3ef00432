package mock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/triage/internal/models"
	"go.uber.org/zap"
)

var (
	firstNames = []string{"Thabo", "Lerato", "Sipho", "Anele", "Pieter", "Naledi", "Johan", "Zanele"}
	lastNames  = []string{"Nkosi", "Dlamini", "van der Merwe", "Mokoena", "Botha", "Khumalo", "Naidoo", "Pillay"}
	domains    = []string{"gmail.com", "outlook.com", "myregent.ac.za", "yahoo.co.za"}

	// samples cover most tags plus a few PII-bearing bodies for the redaction path
	samples = []struct{ subject, body string }{
		{"Results not showing", "Good day, I can't view my results on the portal. Are they out yet?"},
		{"Proof of payment", "Please find attached my proof of payment. My ID number is 9001015009087, call me on 082 555 1234."},
		{"Fee statement", "Please send me a fee statement for the current year to send to my sponsor."},
		{"Aegrotat application", "I missed my exam because I was in hospital, how do I apply for Aegrotat?"},
		{"SMOWL error", "Error C-LS-1001 came up and my camera went off in the middle of the exam."},
		{"Password reset", "I cannot log into the student portal. How do I reset my password?"},
		{"Transcript hold", "Why is there a hold on my transcript? My account is paid in full."},
		{"Graduation", "When will the graduation details be shared?"},
		{"Registration 2026", "How do I register for the 2026 academic year?"},
		{"Unfair marking", "I am writing on behalf of the class regarding unfair marking. We have sent multiple emails with no response."},
		{"Out of office", "I will be back on Monday."},
	}
)

// Options configures the fake services
type Options struct {
	User       string // mailbox the fake Graph API serves
	HTTPClient *http.Client
	Logger     *zap.Logger
	Now        func() time.Time
}

type message struct {
	ID               string
	ConversationID   string
	Subject          string
	BodyHTML         string
	BodyPreview      string
	FromName         string
	FromAddress      string
	ReceivedDateTime time.Time
	Categories       []string
}

// Mock holds the in-memory mailbox and subscription state
type Mock struct {
	user   string
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu            sync.RWMutex
	messages      map[string]*message
	subscriptions map[string]*models.Subscription
	tokens        map[string]time.Time
	counter       int
}

func New(opts Options) *Mock {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	user := opts.User
	if user == "" {
		user = "support@regent.ac.za"
	}
	return &Mock{
		user:          user,
		client:        client,
		logger:        logger,
		now:           now,
		messages:      make(map[string]*message),
		subscriptions: make(map[string]*models.Subscription),
		tokens:        make(map[string]time.Time),
	}
}

func (m *Mock) generateMessage(index int) *message {
	sample := samples[rand.Intn(len(samples))]
	firstName := firstNames[index%len(firstNames)]
	lastName := lastNames[index%len(lastNames)]
	domain := domains[rand.Intn(len(domains))]

	return &message{
		ID:             "AAMk" + uuid.NewString(),
		ConversationID: "AAQk" + uuid.NewString(),
		Subject:        sample.subject,
		BodyHTML: fmt.Sprintf("<html><body><p>%s</p><p>Kind regards,<br>%s %s</p></body></html>",
			sample.body, firstName, lastName),
		BodyPreview:      sample.body,
		FromName:         fmt.Sprintf("%s %s", firstName, lastName),
		FromAddress:      fmt.Sprintf("student%d@%s", index, domain),
		ReceivedDateTime: m.now().UTC(),
	}
}

// AddMessages puts n new messages in the inbox and notifies every
// subscription. It returns the new message ids and the number of
// successful deliveries.
func (m *Mock) AddMessages(ctx context.Context, n int) ([]string, int, error) {
	if n < 1 {
		return nil, 0, fmt.Errorf("count must be at least 1")
	}

	m.mu.Lock()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		msg := m.generateMessage(m.counter)
		m.messages[msg.ID] = msg
		ids = append(ids, msg.ID)
		m.counter++
	}
	subs := m.activeSubscriptionsLocked()
	m.mu.Unlock()

	delivered := 0
	for _, sub := range subs {
		batch := models.NotificationBatch{Value: make([]models.Notification, 0, len(ids))}
		for _, id := range ids {
			batch.Value = append(batch.Value, models.Notification{
				SubscriptionID: sub.ID,
				ClientState:    sub.ClientState,
				ChangeType:     "created",
				Resource:       fmt.Sprintf("Users/%s/Messages/%s", m.user, id),
				ResourceData: &models.ResourceData{
					ODataType: "#Microsoft.Graph.Message",
					ODataID:   fmt.Sprintf("Users/%s/Messages/%s", m.user, id),
					ID:        id,
				},
			})
		}
		if err := m.deliver(ctx, sub.NotificationURL, batch); err != nil {
			m.logger.Warn("Notification delivery failed",
				zap.String("subscription_id", sub.ID),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return ids, delivered, nil
}

func (m *Mock) activeSubscriptionsLocked() []models.Subscription {
	now := m.now().UTC()
	subs := make([]models.Subscription, 0, len(m.subscriptions))
	for _, s := range m.subscriptions {
		exp, err := time.Parse(time.RFC3339Nano, s.ExpirationDateTime)
		if err == nil && exp.Before(now) {
			continue
		}
		subs = append(subs, *s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs
}

func (m *Mock) deliver(ctx context.Context, url string, batch models.NotificationBatch) error {
	buf, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// validateEndpoint performs the subscription handshake: the endpoint must
// echo the validation token as plain text.
func (m *Mock) validateEndpoint(ctx context.Context, notificationURL string) error {
	token := "Validation: " + uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notificationURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("validationToken", token)
	req.URL.RawQuery = q.Encode()

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach notification url: %w", err)
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return fmt.Errorf("failed to read validation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || body.String() != token {
		return fmt.Errorf("validation failed: status %d", resp.StatusCode)
	}
	return nil
}

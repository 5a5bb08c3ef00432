package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stoik/triage/internal/models"
	"github.com/stoik/triage/services/triage-service/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	graphScope = "https://graph.microsoft.com/.default"

	// DefaultExpiration is the provider maximum for message subscriptions (~3 days)
	DefaultExpiration = 4230 * time.Minute

	expirationLayout = "2006-01-02T15:04:05.0000000Z"
)

// GraphOptions configures the Microsoft Graph provider
type GraphOptions struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	User         string // mailbox address or id
	ClientState  string // echoed back in every notification
	GraphURL     string // e.g. https://graph.microsoft.com/v1.0
	AuthURL      string // e.g. https://login.microsoftonline.com
	Expiration   time.Duration
	HTTPClient   *http.Client
	Logger       *zap.Logger
	Now          func() time.Time
}

// GraphProvider implements the Provider interface for Microsoft 365 mailboxes
type GraphProvider struct {
	baseURL     string
	user        string
	clientState string
	expiration  time.Duration
	client      *http.Client
	tokens      oauth2.TokenSource
	logger      *zap.Logger
	now         func() time.Time
}

// NewGraphProvider creates a new Graph provider client. Access tokens are
// cached and refreshed once they expire.
func NewGraphProvider(opts GraphOptions) *GraphProvider {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	expiration := opts.Expiration
	if expiration <= 0 {
		expiration = DefaultExpiration
	}

	cc := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", opts.AuthURL, url.PathEscape(opts.TenantID)),
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, client)

	return &GraphProvider{
		baseURL:     opts.GraphURL,
		user:        opts.User,
		clientState: opts.ClientState,
		expiration:  expiration,
		client:      client,
		tokens:      oauth2.ReuseTokenSource(nil, cc.TokenSource(tokenCtx)),
		logger:      logger.Named("provider"),
		now:         now,
	}
}

type graphMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Subject        string `json:"subject"`
	BodyPreview    string `json:"bodyPreview"`
	Body           *struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From *struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime string   `json:"receivedDateTime"`
	Categories       []string `json:"categories"`
}

// FetchMessage implements Provider.FetchMessage
func (g *GraphProvider) FetchMessage(ctx context.Context, messageID string) (*models.ProviderMessage, error) {
	var msg graphMessage
	if err := g.do(ctx, "get email", http.MethodGet, g.messagePath(messageID), nil, &msg); err != nil {
		return nil, err
	}

	out := &models.ProviderMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Subject:        msg.Subject,
		BodyPreview:    msg.BodyPreview,
		ReceivedAt:     msg.ReceivedDateTime,
		Categories:     msg.Categories,
	}
	if msg.Body != nil {
		out.BodyHTML = msg.Body.Content
	}
	if msg.From != nil {
		out.FromAddress = msg.From.EmailAddress.Address
		out.FromName = msg.From.EmailAddress.Name
	}
	if out.ID == "" {
		out.ID = messageID
	}
	return out, nil
}

// ApplyCategory implements Provider.ApplyCategory
func (g *GraphProvider) ApplyCategory(ctx context.Context, messageID, category string) bool {
	payload := map[string][]string{"categories": {category}}
	err := g.do(ctx, "apply category", http.MethodPatch, g.messagePath(messageID), payload, nil)
	if err != nil {
		g.logger.Warn("failed to apply category (check Mail.ReadWrite permission)",
			zap.String("message_id", logging.ShortID(messageID)),
			zap.String("category", category),
			zap.Error(err),
		)
		return false
	}
	return true
}

// CreateSubscription implements Provider.CreateSubscription
func (g *GraphProvider) CreateSubscription(ctx context.Context, notificationURL string) (*models.Subscription, error) {
	payload := models.Subscription{
		ChangeType:         "created",
		NotificationURL:    notificationURL,
		Resource:           fmt.Sprintf("users/%s/mailFolders/inbox/messages", g.user),
		ExpirationDateTime: g.expiresAt(),
		ClientState:        g.clientState,
	}

	var sub models.Subscription
	if err := g.do(ctx, "create subscription", http.MethodPost, "/subscriptions", payload, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// RenewSubscription implements Provider.RenewSubscription
func (g *GraphProvider) RenewSubscription(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	payload := map[string]string{"expirationDateTime": g.expiresAt()}

	var sub models.Subscription
	if err := g.do(ctx, "renew subscription", http.MethodPatch, "/subscriptions/"+url.PathEscape(subscriptionID), payload, &sub); err != nil {
		return nil, err
	}
	if sub.ID == "" {
		sub.ID = subscriptionID
	}
	return &sub, nil
}

// DeleteSubscription implements Provider.DeleteSubscription
func (g *GraphProvider) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	return g.do(ctx, "delete subscription", http.MethodDelete, "/subscriptions/"+url.PathEscape(subscriptionID), nil, nil)
}

// ListSubscriptions implements Provider.ListSubscriptions
func (g *GraphProvider) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var page struct {
		Value []models.Subscription `json:"value"`
	}
	if err := g.do(ctx, "list subscriptions", http.MethodGet, "/subscriptions", nil, &page); err != nil {
		return nil, err
	}
	if page.Value == nil {
		page.Value = []models.Subscription{}
	}
	return page.Value, nil
}

func (g *GraphProvider) messagePath(messageID string) string {
	return fmt.Sprintf("/users/%s/messages/%s", url.PathEscape(g.user), url.PathEscape(messageID))
}

func (g *GraphProvider) expiresAt() string {
	return g.now().UTC().Add(g.expiration).Format(expirationLayout)
}

func (g *GraphProvider) token() (string, error) {
	tok, err := g.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return tok.AccessToken, nil
}

// do performs an authenticated Graph call; out may be nil when the body is ignored
func (g *GraphProvider) do(ctx context.Context, op, method, path string, payload, out any) error {
	accessToken, err := g.token()
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

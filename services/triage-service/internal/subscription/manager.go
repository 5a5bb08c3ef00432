package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/stoik/triage/internal/models"
	"github.com/stoik/triage/services/triage-service/internal/logging"
	"github.com/stoik/triage/services/triage-service/internal/metrics"
	"go.uber.org/zap"
)

// ErrInvalidInput is returned before any provider call when required input is missing
var ErrInvalidInput = errors.New("invalid input")

// Provider is the subscription half of the mailbox client
type Provider interface {
	CreateSubscription(ctx context.Context, notificationURL string) (*models.Subscription, error)
	RenewSubscription(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	DeleteSubscription(ctx context.Context, subscriptionID string) error
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
}

// RenewFailure is one subscription that could not be renewed
type RenewFailure struct {
	SubscriptionID string
	Err            error
}

// RenewReport summarizes one renewal pass
type RenewReport struct {
	Total    int
	Renewed  int
	Failures []RenewFailure
}

// Manager keeps webhook subscriptions alive and exposes the admin operations
type Manager struct {
	provider Provider
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewManager(provider Provider, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		provider: provider,
		metrics:  m,
		logger:   logger.Named("subscriptions"),
	}
}

// RenewAll extends every active subscription. One failed renewal does not
// stop the others; the error is only set when the listing itself fails.
func (m *Manager) RenewAll(ctx context.Context) (RenewReport, error) {
	var report RenewReport

	subs, err := m.provider.ListSubscriptions(ctx)
	if err != nil {
		m.logger.Error("Scheduled subscription renewal failed", zap.Error(err))
		return report, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	m.logger.Info("Renewing subscriptions", zap.Int("count", len(subs)))

	for _, sub := range subs {
		if sub.ID == "" {
			continue
		}
		report.Total++

		renewed, err := m.provider.RenewSubscription(ctx, sub.ID)
		if err != nil {
			m.metrics.Renewal(false)
			m.logger.Error("Failed to renew subscription",
				zap.String("subscription_id", logging.ShortID(sub.ID)),
				zap.Error(err),
			)
			report.Failures = append(report.Failures, RenewFailure{SubscriptionID: sub.ID, Err: err})
			continue
		}

		m.metrics.Renewal(true)
		report.Renewed++
		m.logger.Info("Renewed subscription",
			zap.String("subscription_id", logging.ShortID(sub.ID)),
			zap.String("expires", renewed.ExpirationDateTime),
		)
	}

	m.logger.Info("Subscription renewal complete",
		zap.Int("renewed", report.Renewed),
		zap.Int("total", report.Total),
	)
	return report, nil
}

func (m *Manager) List(ctx context.Context) ([]models.Subscription, error) {
	return m.provider.ListSubscriptions(ctx)
}

// Create registers webhookURL, which must be an absolute http(s) URL
func (m *Manager) Create(ctx context.Context, webhookURL string) (*models.Subscription, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil, fmt.Errorf("%w: webhook_url is required", ErrInvalidInput)
	}
	u, err := url.Parse(webhookURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("%w: webhook_url must be an absolute http(s) URL", ErrInvalidInput)
	}

	sub, err := m.provider.CreateSubscription(ctx, webhookURL)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Created subscription",
		zap.String("subscription_id", sub.ID),
		zap.String("expires", sub.ExpirationDateTime),
	)
	return sub, nil
}

func (m *Manager) Delete(ctx context.Context, subscriptionID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return fmt.Errorf("%w: subscription_id is required", ErrInvalidInput)
	}
	if err := m.provider.DeleteSubscription(ctx, subscriptionID); err != nil {
		return err
	}
	m.logger.Info("Deleted subscription", zap.String("subscription_id", subscriptionID))
	return nil
}

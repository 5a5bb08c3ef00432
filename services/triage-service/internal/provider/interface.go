package provider

import (
	"context"

	"github.com/stoik/triage/internal/models"
)

// Provider defines the interface for the mailbox provider (Microsoft Graph)
type Provider interface {
	// FetchMessage retrieves one message. Failure must abort processing of that message.
	FetchMessage(ctx context.Context, messageID string) (*models.ProviderMessage, error)

	// ApplyCategory tags a message in the remote mailbox. Best-effort: returns
	// false (and logs) instead of an error.
	ApplyCategory(ctx context.Context, messageID, category string) bool

	// CreateSubscription registers notificationURL for new messages in the inbox
	CreateSubscription(ctx context.Context, notificationURL string) (*models.Subscription, error)

	// RenewSubscription pushes the expiration of an existing subscription forward
	RenewSubscription(ctx context.Context, subscriptionID string) (*models.Subscription, error)

	DeleteSubscription(ctx context.Context, subscriptionID string) error

	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
}

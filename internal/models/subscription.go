package models

// Subscription represents a provider-side webhook registration.
// Not persisted locally: the provider is the only source of truth.
type Subscription struct {
	ID                 string `json:"id,omitempty"`
	Resource           string `json:"resource,omitempty"`
	ChangeType         string `json:"changeType,omitempty"`
	NotificationURL    string `json:"notificationUrl,omitempty"`
	ExpirationDateTime string `json:"expirationDateTime"`
	ClientState        string `json:"clientState,omitempty"`
}

// Notification is one entry of a webhook delivery batch
type Notification struct {
	SubscriptionID string        `json:"subscriptionId"`
	ClientState    string        `json:"clientState"`
	ChangeType     string        `json:"changeType"`
	Resource       string        `json:"resource"`
	ResourceData   *ResourceData `json:"resourceData,omitempty"`
	TenantID       string        `json:"tenantId,omitempty"`
}

type ResourceData struct {
	ODataType string `json:"@odata.type"`
	ODataID   string `json:"@odata.id"`
	ID        string `json:"id"`
}

// NotificationBatch is the webhook request body
type NotificationBatch struct {
	Value []Notification `json:"value"`
}

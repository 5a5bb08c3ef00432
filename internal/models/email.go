package models

import "time"

// ProviderMessage represents a message fetched from the mailbox provider
type ProviderMessage struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversation_id"`
	Subject        string   `json:"subject"`
	BodyHTML       string   `json:"body_html"`
	BodyPreview    string   `json:"body_preview"`
	FromAddress    string   `json:"from_address"`
	FromName       string   `json:"from_name"`
	ReceivedAt     string   `json:"received_at"` // ISO-8601 as delivered by the provider
	Categories     []string `json:"categories,omitempty"`
}

// ProcessedEmail database model (one row per distinct provider message)
// message_id is the idempotency witness: presence of the row means the
// message went through the whole pipeline once.
type ProcessedEmail struct {
	ID             int64     `db:"id" json:"id"`
	MessageID      string    `db:"message_id" json:"message_id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Subject        string    `db:"subject" json:"subject"`
	Snippet        string    `db:"snippet" json:"snippet"`
	FromAddress    string    `db:"from_address" json:"from_address"`
	FromName       string    `db:"from_name" json:"from_name"`
	Classification string    `db:"classification" json:"classification"`
	Confidence     float64   `db:"confidence" json:"confidence"`
	Reason         string    `db:"reason" json:"reason"`
	BodyText       string    `db:"body_text" json:"body_text,omitempty"`
	ReceivedAt     string    `db:"received_at" json:"received_at"`
	ProcessedAt    time.Time `db:"processed_at" json:"processed_at"`
}

// LLMUsageRecord token accounting for one model call, keyed to an email row
type LLMUsageRecord struct {
	ID           int64     `db:"id" json:"id"`
	EmailID      int64     `db:"email_id" json:"email_id"`
	Model        string    `db:"model" json:"model"`
	Operation    string    `db:"operation" json:"operation"`
	InputTokens  int       `db:"input_tokens" json:"input_tokens"`
	OutputTokens int       `db:"output_tokens" json:"output_tokens"`
	TotalTokens  int       `db:"total_tokens" json:"total_tokens"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// TokenUsage as reported by the language model
type TokenUsage struct {
	Input  int `json:"input_tokens"`
	Output int `json:"output_tokens"`
	Total  int `json:"total_tokens"`
}

// ClassificationResult is produced per email and never stored as-is.
// TokenUsage is nil when the model reported no usage metadata.
type ClassificationResult struct {
	Classification string      `json:"classification"`
	Confidence     float64     `json:"confidence"`
	Reason         string      `json:"reason"`
	TokenUsage     *TokenUsage `json:"token_usage,omitempty"`
}

type ClassificationCount struct {
	Classification string `db:"classification" json:"classification"`
	Count          int64  `db:"count" json:"count"`
}

type ConversationSummary struct {
	ConversationID  string   `json:"conversation_id"`
	MessageCount    int64    `json:"message_count"`
	Classifications []string `json:"classifications"`
}

type UsageSummary struct {
	Model        string `db:"model" json:"model"`
	Operation    string `db:"operation" json:"operation"`
	Calls        int64  `db:"calls" json:"calls"`
	InputTokens  int64  `db:"input_tokens" json:"input_tokens"`
	OutputTokens int64  `db:"output_tokens" json:"output_tokens"`
	TotalTokens  int64  `db:"total_tokens" json:"total_tokens"`
}

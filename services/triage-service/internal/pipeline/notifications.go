package pipeline

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stoik/triage/internal/models"
	"github.com/stoik/triage/services/triage-service/internal/logging"
	"go.uber.org/zap"
)

// ChangeTypeCreated is the only change type that triggers processing
const ChangeTypeCreated = "created"

// EntryResult records what happened to one notification entry
type EntryResult struct {
	Index     int
	MessageID string
	Outcome   Outcome
	Err       error
}

// HandleNotifications processes a delivery batch sequentially and in order.
// Entries are decoded one at a time, so a malformed entry only costs itself.
// No entry can affect another: every failure stays in its own EntryResult.
func (s *Service) HandleNotifications(ctx context.Context, batch []json.RawMessage) []EntryResult {
	results := make([]EntryResult, 0, len(batch))
	for i, raw := range batch {
		res := s.handleEntry(ctx, i, raw)
		s.metrics.Notification(string(res.Outcome))
		results = append(results, res)
	}
	return results
}

func (s *Service) handleEntry(ctx context.Context, index int, raw json.RawMessage) (res EntryResult) {
	res = EntryResult{Index: index}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while processing notification",
				zap.Int("index", index),
				zap.String("message_id", logging.ShortID(res.MessageID)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	var n models.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		s.logger.Warn("Malformed notification entry", zap.Int("index", index), zap.Error(err))
		res.Outcome = OutcomeMalformed
		res.Err = err
		return res
	}

	if subtle.ConstantTimeCompare([]byte(n.ClientState), []byte(s.clientState)) != 1 {
		s.logger.Warn("Invalid client state in notification", zap.Int("index", index))
		res.Outcome = OutcomeRejectedClientState
		return res
	}

	if n.ChangeType != ChangeTypeCreated {
		s.logger.Info("Skipping non-created notification",
			zap.Int("index", index),
			zap.String("change_type", n.ChangeType),
		)
		res.Outcome = OutcomeIgnoredChangeType
		return res
	}

	messageID, ok := MessageIDFromResource(n.Resource)
	if !ok {
		s.logger.Warn("Could not extract message ID from resource",
			zap.Int("index", index),
			zap.String("resource", n.Resource),
		)
		res.Outcome = OutcomeMissingMessageID
		return res
	}
	res.MessageID = messageID

	res.Outcome, res.Err = s.ProcessMessage(ctx, messageID)
	if res.Err != nil {
		s.logger.Error("Error processing email",
			zap.String("message_id", logging.ShortID(messageID)),
			zap.Error(res.Err),
		)
	}
	return res
}

// MessageIDFromResource returns the path segment that follows the first
// "messages" segment (case-insensitive), e.g. users/u/messages/{id}.
func MessageIDFromResource(resource string) (string, bool) {
	parts := strings.Split(resource, "/")
	for i := 0; i+1 < len(parts); i++ {
		if strings.EqualFold(parts[i], "messages") {
			id := parts[i+1]
			if id == "" {
				return "", false
			}
			return id, true
		}
	}
	return "", false
}

package provider

import (
	"errors"
	"fmt"
)

// ErrAuthentication is returned (wrapped) when the client-credentials
// exchange fails; resource-level failures are *APIError instead.
var ErrAuthentication = errors.New("mailbox authentication failed")

// APIError is a non-success response from a Graph resource endpoint
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("failed to %s: %d - %s", e.Op, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the provider
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

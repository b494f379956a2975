package agent

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// APIError is an error response from the interview service.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"detail"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("interview service error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("interview service error (%d)", e.Status)
}

// IsRetryable returns true if the request may be retried.
func (e *APIError) IsRetryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// parseAPIError converts a non-2xx response into an APIError.
func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}

	var resp struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.Detail != "" {
			apiErr.Message = resp.Detail
		} else if resp.Error != "" {
			apiErr.Message = resp.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// TransportError represents HTTP transport-level failures (DNS, timeouts,
// connection reset, TLS handshake, etc.) while talking to the service.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from service errors (*APIError).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}

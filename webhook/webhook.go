package webhook

import (
	"encoding/json"
	"time"
)

/* Webhook represents a captured inbound request and its delivery outcome
 * Uses value semantics as it represents data, not behavior
 * ID, ProjectID, Method, Headers, Body and ReceivedAt are written once at capture
 */
type Webhook struct {
	ID           string              `json:"id"`
	ProjectID    string              `json:"projectId"`
	Method       string              `json:"method"`
	Headers      map[string][]string `json:"headers"`
	Body         json.RawMessage     `json:"body"`
	ReceivedAt   time.Time           `json:"receivedAt"`
	Status       Status              `json:"status"`
	TargetURL    string              `json:"targetUrl,omitempty"`
	ForwardedAt  *time.Time          `json:"forwardedAt,omitempty"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
	RetryCount   int                 `json:"retryCount"`
	LastRetryAt  *time.Time          `json:"lastRetryAt,omitempty"`
	DLQAt        *time.Time          `json:"dlqAt,omitempty"`
}

// Projection is the lightweight status view pushed to notification channels
type Projection struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	Method       string    `json:"method"`
	ReceivedAt   time.Time `json:"receivedAt"`
	Status       Status    `json:"status"`
	TargetURL    string    `json:"targetUrl,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	RetryCount   int       `json:"retryCount"`
}

// Project returns the notification projection of the webhook
func (w Webhook) Project() Projection {
	return Projection{
		ID:           w.ID,
		ProjectID:    w.ProjectID,
		Method:       w.Method,
		ReceivedAt:   w.ReceivedAt,
		Status:       w.Status,
		TargetURL:    w.TargetURL,
		ErrorMessage: w.ErrorMessage,
		RetryCount:   w.RetryCount,
	}
}

// ContentType returns the first captured Content-Type value, matched case-insensitively
func (w Webhook) ContentType() string {
	return contentType(w.Headers)
}

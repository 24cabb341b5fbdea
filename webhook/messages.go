package webhook

import (
	"encoding/json"
	"time"
)

// Queue topics connecting the relay to its workers
const (
	TopicCaptured   = "webhook-captured"
	TopicForward    = "webhook-forward"
	TopicForwardDLQ = "webhook-forward-dlq"
)

// Notification channels
const (
	GlobalChannel = "webhooks"
	projectPrefix = "webhooks:project:"
)

// ProjectChannel returns the notification channel for one project
func ProjectChannel(projectID string) string {
	return projectPrefix + projectID
}

// CapturedEvent carries raw captured data to the persistence step
type CapturedEvent struct {
	WebhookID  string              `json:"webhookId"`
	ProjectID  string              `json:"projectId"`
	Method     string              `json:"method"`
	Headers    map[string][]string `json:"headers"`
	Body       json.RawMessage     `json:"body"`
	ReceivedAt time.Time           `json:"receivedAt"`
}

// ForwardCommand triggers exactly one delivery attempt
type ForwardCommand struct {
	WebhookID string              `json:"webhookId"`
	TargetURL string              `json:"targetUrl"`
	Headers   map[string][]string `json:"headers"`
	Body      json.RawMessage     `json:"body"`
}

// DeadLetterEvent announces a webhook entering the DLQ
type DeadLetterEvent struct {
	WebhookID    string `json:"webhookId"`
	TargetURL    string `json:"targetUrl"`
	ErrorMessage string `json:"errorMessage"`
	StatusCode   int    `json:"statusCode"`
}

package webhook

import "github.com/stretchr/testify/mock"

// MatchWebhook creates a custom matcher for webhook arguments in mocks
func MatchWebhook(matcher func(Webhook) bool) interface{} {
	return mock.MatchedBy(matcher)
}

// MatchProjection matches a notified projection by record id and status
func MatchProjection(id string, status Status) interface{} {
	return mock.MatchedBy(func(p Projection) bool {
		return p.ID == id && p.Status == status
	})
}

package webhook

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID generates a webhook id: a UUIDv7, time-ordered with a random suffix
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating webhook id: %w", err)
	}
	return id.String(), nil
}

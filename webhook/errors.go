package webhook

import "errors"

var (
	// ErrNotFound is returned when no record exists for a webhook id
	ErrNotFound = errors.New("webhook not found")
	// ErrInvalidInput is returned for malformed requests such as a bad target URL
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidState is returned when an operation is not allowed for the record's current state
	ErrInvalidState = errors.New("invalid state")
	// ErrTransientDelivery marks a retry-worthy attempt failure (5xx, network, timeout)
	ErrTransientDelivery = errors.New("transient delivery failure")
	// ErrPermanentDelivery marks a failure that must not be retried (4xx)
	ErrPermanentDelivery = errors.New("permanent delivery failure")
	// ErrOutcomeNotRecorded is returned when an attempt failed before its outcome was persisted
	ErrOutcomeNotRecorded = errors.New("delivery outcome not recorded")
	// ErrCorruptRecord is returned when a stored record cannot be decoded
	ErrCorruptRecord = errors.New("corrupt webhook record")
	// ErrRecordMissing is returned when a record vanished between dispatch and attempt
	ErrRecordMissing = errors.New("webhook record missing during delivery")
)

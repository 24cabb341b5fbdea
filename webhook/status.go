package webhook

import "fmt"

/* Status represents the current state of a webhook delivery
 * Follows the lifecycle: Received -> Retrying -> Forwarded/DLQ
 * Forwarded and DLQ are left only through an explicit replay or manual retry
 */
type Status int

const (
	Received Status = iota + 1
	Forwarded
	Retrying
	DLQ
	// Failed is the legacy terminal failure state. It is still read from older
	// records but never written; new failures end in DLQ.
	Failed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Received:
		return "received"
	case Forwarded:
		return "forwarded"
	case Retrying:
		return "retrying"
	case DLQ:
		return "dlq"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string, returning the zero Status when unknown
func NewStatus(str string) Status {
	switch str {
	case "received":
		return Received
	case "forwarded":
		return Forwarded
	case "retrying":
		return Retrying
	case "dlq":
		return DLQ
	case "failed":
		return Failed
	default:
		return 0
	}
}

// ParseStatus decodes a stored status; unknown strings are an ErrCorruptRecord
func ParseStatus(str string) (Status, error) {
	s := NewStatus(str)
	if s == 0 {
		return 0, fmt.Errorf("%w: unknown status %q", ErrCorruptRecord, str)
	}
	return s, nil
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Received || s > Failed {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s Status) IsFinal() bool {
	return s == Forwarded || s == DLQ || s == Failed
}

// IsFailure reports whether the status belongs in the failed listing
func (s Status) IsFailure() bool {
	return s == Retrying || s == DLQ || s == Failed
}

// MarshalText encodes the status as its string form
func (s Status) MarshalText() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes the string form of a status
func (s *Status) UnmarshalText(text []byte) error {
	st := NewStatus(string(text))
	if err := st.Validate(); err != nil {
		return fmt.Errorf("parsing status %q: %w", text, err)
	}
	*s = st
	return nil
}

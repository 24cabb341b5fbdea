package webhook

import (
	"context"
	"time"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// Reader provides read operations for webhooks
type Reader interface {
	/* Get returns ErrNotFound (wrapped) when the id is unknown
	 * Context is always the first parameter in functions that do I/O
	 */
	Get(ctx context.Context, id string) (Webhook, error)
	// List returns every record in the webhooks collection, in no particular order
	List(ctx context.Context) ([]Webhook, error)
}

// Writer provides write operations for webhooks
type Writer interface {
	/* Save stores the record under its id, overwriting any previous version
	 * Last write wins
	 */
	Save(ctx context.Context, webhook Webhook) error
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Repository interface {
	Reader
	Writer
	Close(ctx context.Context) error
}

// Locker serializes mutations of a single webhook record
type Locker interface {
	// Lock blocks until the lock for id is held or ctx is done
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// Notifier pushes status projections to observers. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, channel string, p Projection) error
}

// Clock returns the current time; replaced in tests
type Clock func() time.Time

// Package notify abstracts the platform local-notification service. The
// service is fallible and does not deduplicate; idempotence is supplied by
// the reminder scheduler's handle bookkeeping, never assumed here.
package notify

import (
	"context"
	"time"
)

// Kind tags what a notification is for.
type Kind string

const (
	KindDose   Kind = "dose"
	KindRefill Kind = "refill"
)

// Handle is an opaque reference to one scheduled notification.
type Handle string

// Request describes a notification to schedule.
type Request struct {
	Kind         Kind
	MedicationID string
	Title        string
	Body         string

	// Time is the HH:MM time of day for recurring daily requests.
	Time string
	// Start bounds recurring firing to [Start, End); a nil End means
	// ongoing.
	Start time.Time
	End   *time.Time

	// Once requests a single near-immediate firing instead of a
	// recurrence.
	Once bool
}

// Delivery is handed to the callback when a notification fires.
type Delivery struct {
	Handle  Handle
	Request Request
	At      time.Time
}

// Callback receives fired notifications.
type Callback func(Delivery)

// Notifier is the scheduling contract of the platform service.
type Notifier interface {
	Schedule(ctx context.Context, req Request) (Handle, error)
	Cancel(ctx context.Context, handle Handle) error
	CancelAll(ctx context.Context) error
}

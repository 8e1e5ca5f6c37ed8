package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrSlotUnavailable is returned by EventCreator when the slot was taken
// between resolution and booking.
var ErrSlotUnavailable = errors.New("time slot is no longer available")

// AvailabilityChecker answers whether [start, end) is free of events.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, start, end time.Time) (bool, error)
}

// EventCreator books a maintenance event and returns its identifier.
type EventCreator interface {
	CreateEvent(ctx context.Context, req EventRequest) (string, error)
}

// Gateway is the calendar system as seen by the scheduler.
type Gateway interface {
	AvailabilityChecker
	EventCreator
}

// EventRequest carries everything needed to create a maintenance event.
type EventRequest struct {
	Summary     string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
	// Attendees beyond the organizer; only set when client reminders are enabled.
	Attendees []string
}

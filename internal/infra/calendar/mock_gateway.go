package calendar

import (
	"context"
	"sync"
	"time"

	domainCalendar "maintenance_scheduler/internal/domain/calendar"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MockGateway is an in-memory calendar used when MOCK_CALENDAR is on.
// Events created during the run block later overlapping slots.
type MockGateway struct {
	mu     sync.Mutex
	events map[string]domainCalendar.EventRequest
	logger *logrus.Entry
}

func NewMockGateway(logger *logrus.Entry) *MockGateway {
	return &MockGateway{events: make(map[string]domainCalendar.EventRequest), logger: logger}
}

func (m *MockGateway) IsAvailable(_ context.Context, start, end time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freeLocked(start, end), nil
}

func (m *MockGateway) CreateEvent(_ context.Context, req domainCalendar.EventRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.freeLocked(req.Start, req.End) {
		return "", domainCalendar.ErrSlotUnavailable
	}
	id := "mock-" + uuid.NewString()
	m.events[id] = req
	m.logger.WithField("event_id", id).Infof("Mock calendar event %q at %s", req.Summary, req.Start.Format(time.RFC3339))
	return id, nil
}

// Events returns a copy of the booked events keyed by id.
func (m *MockGateway) Events() map[string]domainCalendar.EventRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domainCalendar.EventRequest, len(m.events))
	for k, v := range m.events {
		out[k] = v
	}
	return out
}

func (m *MockGateway) freeLocked(start, end time.Time) bool {
	for _, ev := range m.events {
		if start.Before(ev.End) && ev.Start.Before(end) {
			return false
		}
	}
	return true
}

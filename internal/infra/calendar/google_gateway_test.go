package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	domainCalendar "maintenance_scheduler/internal/domain/calendar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// fakeCalendarAPI serves the few Calendar v3 endpoints the gateway calls.
type fakeCalendarAPI struct {
	mu        sync.Mutex
	busy      map[string]bool // calendar id -> has events
	calendars []string
	inserted  []*gcal.Event
	sendParam string
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/users/me/calendarList") && r.Method == http.MethodGet:
		items := make([]map[string]string, 0, len(f.calendars))
		for _, id := range f.calendars {
			items = append(items, map[string]string{"id": id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	case strings.Contains(path, "/calendars/") && strings.HasSuffix(path, "/events") && r.Method == http.MethodGet:
		id := strings.TrimSuffix(path[strings.Index(path, "/calendars/")+len("/calendars/"):], "/events")
		items := []map[string]string{}
		if f.busy[id] {
			items = append(items, map[string]string{"id": "existing", "summary": "Busy"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	case strings.HasSuffix(path, "/events") && r.Method == http.MethodPost:
		var ev gcal.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.inserted = append(f.inserted, &ev)
		f.sendParam = r.URL.Query().Get("sendUpdates")
		ev.Id = "evt-123"
		ev.HtmlLink = "https://calendar.example.com/evt-123"
		_ = json.NewEncoder(w).Encode(&ev)
	default:
		http.NotFound(w, r)
	}
}

func newTestGateway(t *testing.T, api *fakeCalendarAPI, cfg GoogleGatewayConfig) *GoogleGateway {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	svc, err := gcal.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewGoogleGateway(svc, cfg, testLogger())
}

func TestGoogleGateway_IsAvailable(t *testing.T) {
	api := &fakeCalendarAPI{busy: map[string]bool{}}
	gw := newTestGateway(t, api, GoogleGatewayConfig{})
	start, end := slot(3, 16)

	free, err := gw.IsAvailable(context.Background(), start, end)
	require.NoError(t, err)
	assert.True(t, free)

	api.busy["primary"] = true
	free, err = gw.IsAvailable(context.Background(), start, end)
	require.NoError(t, err)
	assert.False(t, free)
}

func TestGoogleGateway_IsAvailable_AllCalendars(t *testing.T) {
	api := &fakeCalendarAPI{
		busy:      map[string]bool{"team@example.com": true},
		calendars: []string{"primary", "team@example.com"},
	}
	gw := newTestGateway(t, api, GoogleGatewayConfig{CheckAllCalendars: true})
	start, end := slot(3, 16)

	free, err := gw.IsAvailable(context.Background(), start, end)

	require.NoError(t, err)
	assert.False(t, free)
}

func TestGoogleGateway_CreateEvent(t *testing.T) {
	api := &fakeCalendarAPI{busy: map[string]bool{}}
	gw := newTestGateway(t, api, GoogleGatewayConfig{
		Timezone:          "America/New_York",
		OrganizerEmail:    "grace@webcare.example.com",
		CompanyReminders:  true,
		EmailReminderMins: 1440,
		PopupReminderMins: 60,
	})
	start, end := slot(3, 16)

	id, err := gw.CreateEvent(context.Background(), domainCalendar.EventRequest{
		Summary:   "Website Maintenance - acme.example.com",
		Location:  "acme.example.com",
		Start:     start,
		End:       end,
		Attendees: []string{"ada@example.com"},
	})

	require.NoError(t, err)
	assert.Equal(t, "evt-123", id)
	assert.Equal(t, "none", api.sendParam)
	require.Len(t, api.inserted, 1)
	ev := api.inserted[0]
	assert.Equal(t, "Website Maintenance - acme.example.com", ev.Summary)
	assert.Equal(t, start.Format(time.RFC3339), ev.Start.DateTime)
	assert.Equal(t, "America/New_York", ev.Start.TimeZone)
	require.Len(t, ev.Attendees, 2)
	assert.Equal(t, "accepted", ev.Attendees[0].ResponseStatus)
	assert.Equal(t, "ada@example.com", ev.Attendees[1].Email)
	assert.Equal(t, "needsAction", ev.Attendees[1].ResponseStatus)
	require.NotNil(t, ev.Reminders)
	assert.False(t, ev.Reminders.UseDefault)
	require.Len(t, ev.Reminders.Overrides, 2)
	assert.Equal(t, int64(1440), ev.Reminders.Overrides[0].Minutes)
}

func TestGoogleGateway_CreateEvent_SlotTaken(t *testing.T) {
	api := &fakeCalendarAPI{busy: map[string]bool{"primary": true}}
	gw := newTestGateway(t, api, GoogleGatewayConfig{})
	start, end := slot(3, 16)

	_, err := gw.CreateEvent(context.Background(), domainCalendar.EventRequest{Start: start, End: end})

	assert.ErrorIs(t, err, domainCalendar.ErrSlotUnavailable)
	assert.Empty(t, api.inserted)
}

func TestGoogleGateway_BuildEvent_NoCompanyReminders(t *testing.T) {
	gw := NewGoogleGateway(nil, GoogleGatewayConfig{}, testLogger())
	start, end := slot(3, 16)

	ev := gw.buildEvent(domainCalendar.EventRequest{Start: start, End: end})

	assert.Empty(t, ev.Attendees)
	assert.Empty(t, ev.Reminders.Overrides)
	assert.False(t, ev.Reminders.UseDefault)
}

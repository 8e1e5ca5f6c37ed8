package calendar

import (
	"context"
	"fmt"
	"time"

	domainCalendar "maintenance_scheduler/internal/domain/calendar"

	"github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
)

// GoogleGatewayConfig controls how events are checked and created.
type GoogleGatewayConfig struct {
	CalendarID        string
	CheckAllCalendars bool
	Timezone          string
	OrganizerEmail    string
	CompanyReminders  bool
	EmailReminderMins int64
	PopupReminderMins int64
}

// GoogleGateway implements calendar.Gateway on the Google Calendar v3 API.
type GoogleGateway struct {
	svc    *gcal.Service
	cfg    GoogleGatewayConfig
	logger *logrus.Entry
}

func NewGoogleGateway(svc *gcal.Service, cfg GoogleGatewayConfig, logger *logrus.Entry) *GoogleGateway {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	return &GoogleGateway{svc: svc, cfg: cfg, logger: logger}
}

// IsAvailable reports whether no event overlaps [start, end) in the checked calendars.
func (g *GoogleGateway) IsAvailable(ctx context.Context, start, end time.Time) (bool, error) {
	ids, err := g.calendarIDs(ctx)
	if err != nil {
		return false, err
	}

	for _, id := range ids {
		events, err := g.svc.Events.List(id).
			Context(ctx).
			TimeMin(start.Format(time.RFC3339)).
			TimeMax(end.Format(time.RFC3339)).
			MaxResults(10).
			SingleEvents(true).
			OrderBy("startTime").
			Do()
		if err != nil {
			return false, fmt.Errorf("failed to list events in calendar %s: %w", id, err)
		}
		if len(events.Items) > 0 {
			return false, nil
		}
	}
	return true, nil
}

// CreateEvent re-checks the slot, then inserts the event without notifying attendees.
func (g *GoogleGateway) CreateEvent(ctx context.Context, req domainCalendar.EventRequest) (string, error) {
	ok, err := g.IsAvailable(ctx, req.Start, req.End)
	if err != nil {
		return "", err
	}
	if !ok {
		g.logger.Error("Time slot is no longer available (possible race condition)")
		return "", domainCalendar.ErrSlotUnavailable
	}

	created, err := g.svc.Events.Insert(g.cfg.CalendarID, g.buildEvent(req)).
		Context(ctx).
		SendUpdates("none").
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert calendar event: %w", err)
	}
	g.logger.Infof("Created calendar event: %s", created.HtmlLink)
	return created.Id, nil
}

func (g *GoogleGateway) buildEvent(req domainCalendar.EventRequest) *gcal.Event {
	ev := &gcal.Event{
		Summary:     req.Summary,
		Location:    req.Location,
		Description: req.Description,
		Start:       &gcal.EventDateTime{DateTime: req.Start.Format(time.RFC3339), TimeZone: g.cfg.Timezone},
		End:         &gcal.EventDateTime{DateTime: req.End.Format(time.RFC3339), TimeZone: g.cfg.Timezone},
		Reminders:   &gcal.EventReminders{UseDefault: false, ForceSendFields: []string{"UseDefault"}},
	}

	if g.cfg.OrganizerEmail != "" {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: g.cfg.OrganizerEmail, ResponseStatus: "accepted"})
	}
	for _, email := range req.Attendees {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email, ResponseStatus: "needsAction"})
	}

	if g.cfg.CompanyReminders {
		ev.Reminders.Overrides = []*gcal.EventReminder{
			{Method: "email", Minutes: g.cfg.EmailReminderMins, ForceSendFields: []string{"Minutes"}},
			{Method: "popup", Minutes: g.cfg.PopupReminderMins, ForceSendFields: []string{"Minutes"}},
		}
	}
	return ev
}

func (g *GoogleGateway) calendarIDs(ctx context.Context) ([]string, error) {
	if !g.cfg.CheckAllCalendars {
		return []string{g.cfg.CalendarID}, nil
	}

	var ids []string
	err := g.svc.CalendarList.List().Context(ctx).Pages(ctx, func(page *gcal.CalendarList) error {
		for _, item := range page.Items {
			ids = append(ids, item.Id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return ids, nil
}

// internal/app/maintenance_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"maintenance_scheduler/internal/domain/calendar"
	"maintenance_scheduler/internal/domain/client"
	"maintenance_scheduler/internal/domain/ledger"
	"maintenance_scheduler/internal/domain/mail"
	"maintenance_scheduler/internal/infra/lock"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoWindowAvailable  = errors.New("no maintenance window available")
	ErrDateTaken          = errors.New("maintenance date already held by another client")
	ErrInvalidClientIndex = errors.New("invalid client index")
	ErrRunInProgress      = errors.New("another scheduling run is in progress")
)

// ClientState is where a client ended up in a run.
type ClientState string

const (
	StatePending        ClientState = "PENDING"
	StateWindowResolved ClientState = "WINDOW_RESOLVED"
	StateEventBooked    ClientState = "EVENT_BOOKED"
	StateEmailSent      ClientState = "EMAIL_SENT"
	StateRecorded       ClientState = "RECORDED"
	StateSkipped        ClientState = "SKIPPED"
	StateFailed         ClientState = "FAILED"
)

// Successful reports whether the state counts towards the run's success total.
func (s ClientState) Successful() bool {
	return s != StateFailed && s != StatePending
}

// EmailRenderer builds the notification for a client and window.
type EmailRenderer interface {
	Render(c *client.Client, w Window) (*mail.Message, error)
}

// EmailArchive keeps copies of sent and previewed messages.
type EmailArchive interface {
	SaveSent(msg *mail.Message, c *client.Client, w Window, sentAt time.Time) (string, error)
	SavePreview(msg *mail.Message, c *client.Client) (string, error)
}

// Cleaner purges old artifacts after a run.
type Cleaner interface {
	Cleanup(now time.Time)
}

// RunLocker serializes runs across processes.
type RunLocker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// RunReporter publishes a finished run's summary.
type RunReporter interface {
	Report(ctx context.Context, report *RunReport) error
}

// RunOptions select what a run does.
type RunOptions struct {
	Preview bool
	// ClientIndex selects one active client by position.
	ClientIndex *int
	ForcedDate  *time.Time
}

// ClientResult is the outcome for one client.
type ClientResult struct {
	ClientID   string
	Website    string
	State      ClientState
	Window     *Window
	EventID    string
	OutputPath string
	Reason     string
	Err        error
}

// RunReport aggregates a run.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Preview   bool
	Results   []ClientResult
}

// Succeeded counts clients whose outcome was not a failure.
func (r *RunReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.State.Successful() {
			n++
		}
	}
	return n
}

// MaintenanceServiceDeps wires a MaintenanceService.
type MaintenanceServiceDeps struct {
	Clients  client.Repository
	Ledger   ledger.Repository
	Calendar calendar.Gateway
	Renderer EmailRenderer
	Mailer   mail.Mailer
	Archive  EmailArchive
	Resolver *WindowResolver
	Guard    CollisionGuard
	// Optional collaborators.
	Cleaner  Cleaner
	Locker   RunLocker
	Reporter RunReporter

	Policy          SchedulingPolicy
	ClientReminders bool
	Now             func() time.Time
	Logger          *logrus.Entry
}

// MaintenanceService runs the per-client scheduling pass.
type MaintenanceService struct {
	deps MaintenanceServiceDeps
	// running serializes passes in this process; Locker covers other processes.
	running sync.Mutex
}

func NewMaintenanceService(deps MaintenanceServiceDeps) *MaintenanceService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Policy.Location == nil {
		deps.Policy.Location = time.UTC
	}
	return &MaintenanceService{deps: deps}
}

func (s *MaintenanceService) now() time.Time {
	return s.deps.Now().In(s.deps.Policy.Location)
}

// Run processes the selected active clients one at a time. Per-client failures are
// recorded in the report; only setup problems are returned as errors.
func (s *MaintenanceService) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	report := &RunReport{RunID: uuid.NewString(), StartedAt: s.now(), Preview: opts.Preview}
	log := s.deps.Logger.WithField("run_id", report.RunID)
	log.Info("Starting maintenance scheduling process")

	if !s.running.TryLock() {
		log.Warn("Another scheduling run is active in this process. Exiting.")
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	if s.deps.Locker != nil {
		release, err := s.deps.Locker.Acquire(ctx)
		if err != nil {
			if errors.Is(err, lock.ErrLockHeld) {
				log.Warn("Another scheduling run holds the lock. Exiting.")
				return nil, ErrRunInProgress
			}
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		defer func() {
			if errRelease := release(context.Background()); errRelease != nil {
				log.WithError(errRelease).Error("Failed to release run lock")
			}
		}()
	}

	active, err := s.deps.Clients.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active clients: %w", err)
	}

	toProcess := active
	if opts.ClientIndex != nil {
		idx := *opts.ClientIndex
		if idx < 0 || idx >= len(active) {
			log.Errorf("Invalid client index: %d (%d active clients)", idx, len(active))
			return nil, fmt.Errorf("%w: %d", ErrInvalidClientIndex, idx)
		}
		toProcess = []*client.Client{active[idx]}
	}

	for _, c := range toProcess {
		res := s.ProcessClient(ctx, c, opts)
		report.Results = append(report.Results, res)
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("Run cancelled, remaining clients not processed")
			break
		}
	}

	log.Infof("Completed maintenance scheduling. Processed %d/%d active clients successfully.",
		report.Succeeded(), len(toProcess))

	if s.deps.Cleaner != nil {
		s.deps.Cleaner.Cleanup(s.now())
	}
	if s.deps.Reporter != nil {
		if err := s.deps.Reporter.Report(ctx, report); err != nil {
			log.WithError(err).Error("Failed to publish run report")
		}
	}
	return report, nil
}

// ProcessClient moves one client through resolve, book, send and record.
func (s *MaintenanceService) ProcessClient(ctx context.Context, c *client.Client, opts RunOptions) ClientResult {
	return s.processClient(ctx, c, opts, 0)
}

func (s *MaintenanceService) processClient(ctx context.Context, c *client.Client, opts RunOptions, attempt int) ClientResult {
	log := s.deps.Logger.WithFields(logrus.Fields{"client_id": c.ID, "attempt": attempt})
	res := ClientResult{ClientID: c.ID, Website: c.WebsiteName, State: StatePending}

	fail := func(err error, msg string) ClientResult {
		log.WithError(err).Error(msg)
		res.State = StateFailed
		res.Err = err
		res.Reason = msg
		return res
	}

	if !c.IsActive() {
		res.State = StateSkipped
		res.Reason = "client is inactive"
		return res
	}

	now := s.now()

	records, err := s.deps.Ledger.List(ctx)
	if err != nil {
		return fail(err, "Failed to load notification ledger")
	}

	if opts.ForcedDate == nil {
		if rec, ok := records[c.ID]; ok && AlreadyNotified(&rec, now) {
			log.Infof("Notification already sent this month for %s. Skipping.", c.WebsiteName)
			res.State = StateSkipped
			res.Reason = "already notified this month"
			return res
		}
	}

	window, err := s.deps.Resolver.Resolve(ctx, c, now, s.deps.Guard.BookedDates(records, c.ID), s.deps.Calendar,
		ResolveOptions{ForcedDate: opts.ForcedDate})
	if err != nil {
		return fail(err, "Failed to resolve maintenance window")
	}
	if window == nil {
		log.Warnf("No suitable maintenance window found for %s", c.WebsiteName)
		return fail(ErrNoWindowAvailable, "No suitable maintenance window found")
	}
	res.Window = window
	res.State = StateWindowResolved

	// Re-read the ledger: the snapshot used for resolution may be stale.
	records, err = s.deps.Ledger.List(ctx)
	if err != nil {
		return fail(err, "Failed to reload notification ledger")
	}
	if holder, taken := s.deps.Guard.TakenBy(records, window.Start, c.ID); taken {
		log.Warnf("Date %s already has maintenance scheduled for %s", window.Date(), holder)
		if attempt == 0 {
			return s.processClient(ctx, c, opts, attempt+1)
		}
		return fail(ErrDateTaken, "Maintenance date already taken")
	}

	if opts.Preview {
		msg, err := s.deps.Renderer.Render(c, *window)
		if err != nil {
			return fail(err, "Failed to render email preview")
		}
		path, err := s.deps.Archive.SavePreview(msg, c)
		if err != nil {
			return fail(err, "Failed to write email preview")
		}
		log.Infof("Email preview written to %s", path)
		res.OutputPath = path
		res.Reason = "preview"
		return res
	}

	daysUntil := daysBetween(now, window.Start)
	if daysUntil > s.deps.Policy.AdvanceNoticeDays {
		log.Infof("Maintenance on %s is %d days away, more than the %d day notice. Not sending yet.",
			window.Date(), daysUntil, s.deps.Policy.AdvanceNoticeDays)
		res.State = StateSkipped
		res.Reason = "outside advance notice period"
		return res
	}

	eventID, err := s.deps.Calendar.CreateEvent(ctx, s.eventRequest(c, *window))
	switch {
	case errors.Is(err, calendar.ErrSlotUnavailable):
		if attempt == 0 {
			log.Warn("Selected time slot is no longer available, retrying with a new slot")
			return s.processClient(ctx, c, opts, attempt+1)
		}
		return fail(err, "Time slot taken again after retry")
	case err != nil:
		// Calendar booking is best-effort; the client still gets the email.
		log.WithError(err).Error("Failed to create calendar event")
	default:
		res.EventID = eventID
		res.State = StateEventBooked
		log.WithField("event_id", eventID).Info("Calendar event created")
	}

	msg, err := s.deps.Renderer.Render(c, *window)
	if err != nil {
		return fail(err, "Failed to render email")
	}
	if err := s.deps.Mailer.Send(ctx, msg); err != nil {
		return fail(err, "Failed to send email")
	}
	res.State = StateEmailSent
	log.Infof("Email sent successfully to %s", joinRecipients(msg))

	sentAt := s.now()
	if err := s.deps.Ledger.Upsert(ctx, c.ID, ledger.NewRecord(sentAt, window.Start)); err != nil {
		return fail(err, "Failed to record sent notification")
	}
	res.State = StateRecorded

	if path, err := s.deps.Archive.SaveSent(msg, c, *window, sentAt); err != nil {
		log.WithError(err).Error("Failed to save email copy")
	} else {
		res.OutputPath = path
		log.Infof("Email copy saved to: %s", path)
	}
	return res
}

func (s *MaintenanceService) eventRequest(c *client.Client, w Window) calendar.EventRequest {
	req := calendar.EventRequest{
		Summary:  fmt.Sprintf("Website Maintenance - %s", c.WebsiteName),
		Location: c.WebsiteName,
		Description: fmt.Sprintf("Scheduled maintenance for %s\nClient: %s\nContact: %s",
			c.WebsiteName, c.FullName(), c.EmailTo.String()),
		Start: w.Start,
		End:   w.End,
	}
	if s.deps.ClientReminders {
		req.Attendees = append(req.Attendees, c.EmailTo...)
		req.Attendees = append(req.Attendees, c.EmailCc...)
	}
	return req
}

// daysBetween counts calendar days from a to b, tolerating DST-shortened days.
func daysBetween(a, b time.Time) int {
	return int(math.Round(dateOnly(b).Sub(dateOnly(a)).Hours() / 24))
}

func joinRecipients(msg *mail.Message) string {
	return client.AddressList(msg.Recipients()).String()
}

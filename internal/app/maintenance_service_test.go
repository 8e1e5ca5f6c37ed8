package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"maintenance_scheduler/internal/domain/calendar"
	"maintenance_scheduler/internal/domain/client"
	"maintenance_scheduler/internal/domain/ledger"
	"maintenance_scheduler/internal/domain/mail"
	"maintenance_scheduler/internal/infra/lock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClients struct {
	all []*client.Client
}

func (f *fakeClients) ListAll(context.Context) ([]*client.Client, error) { return f.all, nil }

func (f *fakeClients) ListActive(context.Context) ([]*client.Client, error) {
	var out []*client.Client
	for _, c := range f.all {
		if c.IsActive() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClients) GetByID(_ context.Context, id string) (*client.Client, error) {
	for _, c := range f.all {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, errors.New("not found")
}

type fakeLedger struct {
	records   map[string]ledger.Record
	listCalls int
	// onList runs before List returns, with the 1-based call number.
	onList    func(call int, records map[string]ledger.Record)
	upsertErr error
	upserts   int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: map[string]ledger.Record{}}
}

func (f *fakeLedger) Get(_ context.Context, id string) (*ledger.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, ledger.ErrRecordNotFound
	}
	return &rec, nil
}

func (f *fakeLedger) List(context.Context) (map[string]ledger.Record, error) {
	f.listCalls++
	if f.onList != nil {
		f.onList(f.listCalls, f.records)
	}
	out := make(map[string]ledger.Record, len(f.records))
	for k, v := range f.records {
		out[k] = v
	}
	return out, nil
}

func (f *fakeLedger) Upsert(_ context.Context, id string, rec ledger.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	f.records[id] = rec
	return nil
}

type fakeCalendar struct {
	busy       map[time.Time]bool
	createErrs []error
	created    []calendar.EventRequest
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{busy: map[time.Time]bool{}}
}

func (f *fakeCalendar) IsAvailable(_ context.Context, start, _ time.Time) (bool, error) {
	return !f.busy[start], nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, req calendar.EventRequest) (string, error) {
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if errors.Is(err, calendar.ErrSlotUnavailable) {
			f.busy[req.Start] = true
		}
		return "", err
	}
	f.created = append(f.created, req)
	return fmt.Sprintf("evt-%d", len(f.created)), nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(c *client.Client, w Window) (*mail.Message, error) {
	return &mail.Message{
		From:     "ops@example.com",
		To:       c.EmailTo,
		Cc:       c.EmailCc,
		Subject:  "Scheduled maintenance " + w.Date(),
		TextBody: "Maintenance for " + c.WebsiteName,
	}, nil
}

type fakeMailer struct {
	err  error
	sent []*mail.Message
	// failFor fails only messages to this address.
	failFor string
}

func (f *fakeMailer) Send(_ context.Context, msg *mail.Message) error {
	if f.err != nil {
		return f.err
	}
	if f.failFor != "" && len(msg.To) > 0 && msg.To[0] == f.failFor {
		return errors.New("smtp: recipient rejected")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeArchive struct {
	sent     []string
	previews []string
}

func (f *fakeArchive) SaveSent(_ *mail.Message, c *client.Client, _ Window, _ time.Time) (string, error) {
	path := "output/" + c.ID
	f.sent = append(f.sent, path)
	return path, nil
}

func (f *fakeArchive) SavePreview(_ *mail.Message, c *client.Client) (string, error) {
	path := "preview/" + c.ID + "/email_preview.html"
	f.previews = append(f.previews, path)
	return path, nil
}

type fakeCleaner struct{ calls int }

func (f *fakeCleaner) Cleanup(time.Time) { f.calls++ }

type fakeLocker struct {
	err      error
	released bool
}

func (f *fakeLocker) Acquire(context.Context) (func(context.Context) error, error) {
	if f.err != nil {
		return nil, f.err
	}
	return func(context.Context) error {
		f.released = true
		return nil
	}, nil
}

type fakeReporter struct{ reports []*RunReport }

func (f *fakeReporter) Report(_ context.Context, r *RunReport) error {
	f.reports = append(f.reports, r)
	return nil
}

type serviceFixture struct {
	clients  *fakeClients
	ledger   *fakeLedger
	calendar *fakeCalendar
	mailer   *fakeMailer
	archive  *fakeArchive
	cleaner  *fakeCleaner
	reporter *fakeReporter
	deps     MaintenanceServiceDeps
}

func newServiceFixture(clients ...*client.Client) *serviceFixture {
	f := &serviceFixture{
		clients:  &fakeClients{all: clients},
		ledger:   newFakeLedger(),
		calendar: newFakeCalendar(),
		mailer:   &fakeMailer{},
		archive:  &fakeArchive{},
		cleaner:  &fakeCleaner{},
		reporter: &fakeReporter{},
	}
	policy := defaultPolicy()
	f.deps = MaintenanceServiceDeps{
		Clients:  f.clients,
		Ledger:   f.ledger,
		Calendar: f.calendar,
		Renderer: fakeRenderer{},
		Mailer:   f.mailer,
		Archive:  f.archive,
		Resolver: NewWindowResolver(policy, testLogger()),
		Guard:    CollisionGuard{},
		Cleaner:  f.cleaner,
		Reporter: f.reporter,
		Policy:   policy,
		Now:      func() time.Time { return tuesday },
		Logger:   testLogger(),
	}
	return f
}

func (f *serviceFixture) service() *MaintenanceService {
	return NewMaintenanceService(f.deps)
}

func namedClient(id, email string) *client.Client {
	c := testClient("Monday", "Wednesday")
	c.ID = id
	c.WebsiteName = id + ".example.com"
	c.EmailTo = client.AddressList{email}
	return c
}

func TestMaintenanceService_ProcessClient_HappyPath(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	f := newServiceFixture(c)

	res := f.service().ProcessClient(context.Background(), c, RunOptions{})

	require.NoError(t, res.Err)
	assert.Equal(t, StateRecorded, res.State)
	require.NotNil(t, res.Window)
	assert.Equal(t, date(2025, time.March, 3, 16, 30), res.Window.Start)
	assert.Equal(t, "evt-1", res.EventID)
	assert.Equal(t, "output/client-1", res.OutputPath)

	require.Len(t, f.calendar.created, 1)
	assert.Equal(t, "Website Maintenance - client-1.example.com", f.calendar.created[0].Summary)
	assert.Empty(t, f.calendar.created[0].Attendees)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, ledger.Record{LastNotificationSent: "2025-02-25", LastMaintenanceDate: "2025-03-03"}, f.ledger.records["client-1"])
}

func TestMaintenanceService_ProcessClient_ClientRemindersAddAttendees(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	c.EmailCc = client.AddressList{"cc@example.com"}
	f := newServiceFixture(c)
	f.deps.ClientReminders = true

	res := f.service().ProcessClient(context.Background(), c, RunOptions{})

	assert.Equal(t, StateRecorded, res.State)
	require.Len(t, f.calendar.created, 1)
	assert.Equal(t, []string{"ada@example.com", "cc@example.com"}, f.calendar.created[0].Attendees)
}

func TestMaintenanceService_ProcessClient_AlreadyNotified(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	f := newServiceFixture(c)
	f.ledger.records["client-1"] = ledger.Record{LastNotificationSent: "2025-02-03", LastMaintenanceDate: "2025-02-06"}

	res := f.service().ProcessClient(context.Background(), c, RunOptions{})

	assert.Equal(t, StateSkipped, res.State)
	assert.True(t, res.State.Successful())
	assert.Empty(t, f.calendar.created)
	assert.Empty(t, f.mailer.sent)
}

func TestMaintenanceService_ProcessClient_ForcedDateBypassesGate(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	f := newServiceFixture(c)
	f.ledger.records["client-1"] = ledger.Record{LastNotificationSent: "2025-02-03", LastMaintenanceDate: "2025-02-06"}
	forced := date(2025, time.March, 4, 0, 0)

	res := f.service().ProcessClient(context.Background(), c, RunOptions{ForcedDate: &forced})

	assert.Equal(t, StateRecorded, res.State)
	assert.Equal(t, date(2025, time.March, 4, 16, 30), res.Window.Start)
}

func TestMaintenanceService_ProcessClient_InactiveClient(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	inactive := false
	c.Active = &inactive
	f := newServiceFixture(c)

	res := f.service().ProcessClient(context.Background(), c, RunOptions{})

	assert.Equal(t, StateSkipped, res.State)
	assert.Zero(t, f.ledger.listCalls)
}

func TestMaintenanceService_ProcessClient_BookingRaceRetriesOnce(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	f := newServiceFixture(c)
	f.calendar.createErrs = []error{calendar.ErrSlotUnavailable}

	res := f.service().ProcessClient(context.Background(), c, RunOptions{})

	assert.Equal(t, StateRecorded, res.State)
	assert.Equal(t, date(2025, time.March, 3, 15, 30), res.Window.Start)
	assert.Len(t, f.mailer.sent, 1)
}

func TestMaintenanceService_ProcessClient_BookingRaceTwiceFails(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	f := newServiceFixture(c)
	f.calendar.createErrs = []error{calendar.ErrSlotUnavailable, calendar.ErrSlotUnavailable}

	res := f.service().ProcessClient(context.Background(), c, RunOptions{})

	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, calendar.ErrSlotUnavailable)
	assert.Empty(t, f.mailer.sent)
	assert.Zero(t, f.ledger.upserts)
}

func TestMaintenanceService_ProcessClient_DateTakenOnRecheck(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	f := newServiceFixture(c)
	f.ledger.onList = func(call int, records map[string]ledger.Record) {
		if call == 2 {
			records["client-2"] = ledger.Record{LastNotificationSent: "2025-02-25", LastMaintenanceDate: "2025-03-03"}
		}
	}

	res := f.service().ProcessClient(context.Background(), c, RunOptions{})

	assert.Equal(t, StateRecorded, res.State)
	assert.Equal(t, date(2025, time.March, 5, 16, 30), res.Window.Start)
}

func TestMaintenanceService_ProcessClient_CalendarFailureStillSends(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	f := newServiceFixture(c)
	f.calendar.createErrs = []error{errors.New("googleapi: Error 500")}

	res := f.service().ProcessClient(context.Background(), c, RunOptions{})

	assert.Equal(t, StateRecorded, res.State)
	assert.Empty(t, res.EventID)
	assert.Len(t, f.mailer.sent, 1)
	assert.Contains(t, f.ledger.records, "client-1")
}

func TestMaintenanceService_ProcessClient_SendFailureNotRecorded(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	f := newServiceFixture(c)
	f.mailer.err = errors.New("smtp: connection refused")

	res := f.service().ProcessClient(context.Background(), c, RunOptions{})

	assert.Equal(t, StateFailed, res.State)
	assert.Error(t, res.Err)
	assert.Zero(t, f.ledger.upserts)
	assert.Empty(t, f.archive.sent)
}

func TestMaintenanceService_ProcessClient_LedgerWriteFailure(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	f := newServiceFixture(c)
	f.ledger.upsertErr = errors.New("disk full")

	res := f.service().ProcessClient(context.Background(), c, RunOptions{})

	assert.Equal(t, StateFailed, res.State)
	assert.Len(t, f.mailer.sent, 1)
	assert.Empty(t, f.archive.sent)
}

func TestMaintenanceService_ProcessClient_NoWindow(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	c.Maintenance.RangeFrom = 20
	c.Maintenance.RangeTo = 24
	f := newServiceFixture(c)

	res := f.service().ProcessClient(context.Background(), c, RunOptions{})

	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrNoWindowAvailable)
}

func TestMaintenanceService_ProcessClient_Preview(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	f := newServiceFixture(c)

	res := f.service().ProcessClient(context.Background(), c, RunOptions{Preview: true})

	assert.Equal(t, StateWindowResolved, res.State)
	assert.Equal(t, "preview/client-1/email_preview.html", res.OutputPath)
	assert.Empty(t, f.calendar.created)
	assert.Empty(t, f.mailer.sent)
	assert.Zero(t, f.ledger.upserts)
}

func TestMaintenanceService_ProcessClient_OutsideAdvanceNotice(t *testing.T) {
	c := namedClient("client-1", "ada@example.com")
	f := newServiceFixture(c)
	forced := date(2025, time.March, 20, 0, 0)

	res := f.service().ProcessClient(context.Background(), c, RunOptions{ForcedDate: &forced})

	assert.Equal(t, StateSkipped, res.State)
	assert.Empty(t, f.calendar.created)
	assert.Empty(t, f.mailer.sent)
}

func TestMaintenanceService_Run_ContinuesAfterClientFailure(t *testing.T) {
	first := namedClient("client-1", "bounce@example.com")
	second := namedClient("client-2", "grace@example.com")
	f := newServiceFixture(first, second)
	f.mailer.failFor = "bounce@example.com"

	report, err := f.service().Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, StateFailed, report.Results[0].State)
	assert.Equal(t, StateRecorded, report.Results[1].State)
	assert.Equal(t, 1, report.Succeeded())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, f.cleaner.calls)
	require.Len(t, f.reporter.reports, 1)
	assert.Same(t, report, f.reporter.reports[0])
}

func TestMaintenanceService_Run_ClientsGetDistinctDates(t *testing.T) {
	f := newServiceFixture(
		namedClient("client-1", "ada@example.com"),
		namedClient("client-2", "grace@example.com"),
	)

	report, err := f.service().Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "2025-03-03", report.Results[0].Window.Date())
	assert.Equal(t, "2025-03-05", report.Results[1].Window.Date())
}

func TestMaintenanceService_Run_SkipsInactiveClients(t *testing.T) {
	inactive := false
	off := namedClient("client-1", "ada@example.com")
	off.Active = &inactive
	f := newServiceFixture(off, namedClient("client-2", "grace@example.com"))

	report, err := f.service().Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "client-2", report.Results[0].ClientID)
}

func TestMaintenanceService_Run_ClientIndex(t *testing.T) {
	f := newServiceFixture(
		namedClient("client-1", "ada@example.com"),
		namedClient("client-2", "grace@example.com"),
	)
	idx := 1

	report, err := f.service().Run(context.Background(), RunOptions{ClientIndex: &idx})

	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "client-2", report.Results[0].ClientID)
}

func TestMaintenanceService_Run_InvalidClientIndex(t *testing.T) {
	f := newServiceFixture(namedClient("client-1", "ada@example.com"))
	idx := 3

	report, err := f.service().Run(context.Background(), RunOptions{ClientIndex: &idx})

	assert.ErrorIs(t, err, ErrInvalidClientIndex)
	assert.Nil(t, report)
	assert.Empty(t, f.mailer.sent)
}

func TestMaintenanceService_Run_LockHeld(t *testing.T) {
	f := newServiceFixture(namedClient("client-1", "ada@example.com"))
	f.deps.Locker = &fakeLocker{err: lock.ErrLockHeld}

	report, err := f.service().Run(context.Background(), RunOptions{})

	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Nil(t, report)
	assert.Zero(t, f.ledger.listCalls)
}

func TestMaintenanceService_Run_ReleasesLock(t *testing.T) {
	f := newServiceFixture(namedClient("client-1", "ada@example.com"))
	locker := &fakeLocker{}
	f.deps.Locker = locker

	_, err := f.service().Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	assert.True(t, locker.released)
}

// blockingMailer holds Send until release is closed.
type blockingMailer struct {
	entered chan struct{}
	release chan struct{}
	sent    []*mail.Message
}

func (b *blockingMailer) Send(_ context.Context, msg *mail.Message) error {
	close(b.entered)
	<-b.release
	b.sent = append(b.sent, msg)
	return nil
}

func TestMaintenanceService_Run_OverlappingRunsInProcess(t *testing.T) {
	f := newServiceFixture(namedClient("client-1", "ada@example.com"))
	mailer := &blockingMailer{entered: make(chan struct{}), release: make(chan struct{})}
	f.deps.Mailer = mailer
	svc := f.service()

	type result struct {
		report *RunReport
		err    error
	}
	first := make(chan result, 1)
	go func() {
		report, err := svc.Run(context.Background(), RunOptions{})
		first <- result{report, err}
	}()
	<-mailer.entered

	report, err := svc.Run(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Nil(t, report)

	close(mailer.release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.report.Succeeded())
	assert.Len(t, mailer.sent, 1)

	// Once the first pass is done the next one runs and finds the client already notified.
	report, err = svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, StateSkipped, report.Results[0].State)
	assert.Len(t, mailer.sent, 1)
}

func TestDaysBetween(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Spans the March 2025 DST change.
	a := time.Date(2025, time.March, 8, 22, 0, 0, 0, ny)
	b := time.Date(2025, time.March, 10, 1, 0, 0, 0, ny)
	assert.Equal(t, 2, daysBetween(a, b))
	assert.Equal(t, 0, daysBetween(a, a.Add(time.Hour)))
}

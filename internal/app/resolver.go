// internal/app/resolver.go
package app

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"maintenance_scheduler/internal/domain/calendar"
	"maintenance_scheduler/internal/domain/client"
	"maintenance_scheduler/internal/domain/ledger"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"
)

// Fallback used when a client's preferred_time cannot be parsed.
const (
	defaultSlotHour   = 16
	defaultSlotMinute = 30
)

// SchedulingPolicy is the run-wide part of window resolution.
type SchedulingPolicy struct {
	Location                    *time.Location
	MinimumNoticeDays           int
	AdvanceNoticeDays           int
	AllowMultipleBookingsPerDay bool
	// WeekdayFallback keeps non-preferred weekdays as candidates ranked after preferred ones.
	WeekdayFallback bool
}

// Window is a resolved maintenance window in the scheduling timezone.
type Window struct {
	Start time.Time
	End   time.Time
}

// Date returns the window's calendar date in ledger format.
func (w Window) Date() string {
	return w.Start.Format(ledger.DateLayout)
}

// ResolveOptions are per-run overrides.
type ResolveOptions struct {
	// ForcedDate replaces the candidate date list with a single date.
	ForcedDate *time.Time
}

type clockTime struct {
	hour, minute int
}

// WindowResolver turns a client's maintenance preference into a concrete window.
type WindowResolver struct {
	policy SchedulingPolicy
	logger *logrus.Entry
}

func NewWindowResolver(policy SchedulingPolicy, logger *logrus.Entry) *WindowResolver {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &WindowResolver{policy: policy, logger: logger}
}

// Bounds returns the earliest and latest allowed maintenance dates (midnight, scheduling timezone).
func (r *WindowResolver) Bounds(now time.Time) (earliest, latest time.Time) {
	today := dateOnly(now.In(r.policy.Location))
	return today.AddDate(0, 0, r.policy.MinimumNoticeDays), today.AddDate(0, 0, r.policy.AdvanceNoticeDays)
}

// CandidateDates lists the dates worth trying for pref, best first.
func (r *WindowResolver) CandidateDates(pref client.MaintenancePreference, now time.Time, opts ResolveOptions) []time.Time {
	earliest, latest := r.Bounds(now)

	if opts.ForcedDate != nil {
		forced := dateOnly(opts.ForcedDate.In(r.policy.Location))
		if forced.Before(earliest) {
			r.logger.Warnf("Forced date %s is before the minimum notice period. Using %s instead.",
				forced.Format(ledger.DateLayout), earliest.Format(ledger.DateLayout))
			forced = earliest
		}
		return []time.Time{forced}
	}

	preferred := r.preferredWeekdays(pref.PreferredDays)
	excluded := r.excludedDates(pref.ExcludedDates)

	local := now.In(r.policy.Location)
	thisMonth := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, r.policy.Location)

	var dates []time.Time
	for _, month := range []time.Time{thisMonth, thisMonth.AddDate(0, 1, 0)} {
		last := daysIn(month)
		for day := pref.RangeFrom; day <= pref.RangeTo; day++ {
			if day < 1 || day > last {
				continue // e.g. the 31st of a 30-day month
			}
			d := time.Date(month.Year(), month.Month(), day, 0, 0, 0, 0, r.policy.Location)
			if d.Before(earliest) || d.After(latest) {
				continue
			}
			if _, ok := excluded[d.Format(ledger.DateLayout)]; ok {
				continue
			}
			if _, ok := preferred[d.Weekday()]; !ok && !r.policy.WeekdayFallback {
				continue
			}
			dates = append(dates, d)
		}
	}

	sort.SliceStable(dates, func(i, j int) bool {
		_, iPref := preferred[dates[i].Weekday()]
		_, jPref := preferred[dates[j].Weekday()]
		if iPref != jPref {
			return iPref
		}
		return dates[i].Before(dates[j])
	})
	return dates
}

// Candidates expands CandidateDates into every (date, time) window in trial order.
func (r *WindowResolver) Candidates(pref client.MaintenancePreference, now time.Time, opts ResolveOptions) []Window {
	slots := timeSlots(pref.PreferredTime, pref.FlexibilityHours())
	duration := time.Duration(pref.DurationHours() * float64(time.Hour))

	var out []Window
	for _, d := range r.CandidateDates(pref, now, opts) {
		for _, s := range slots {
			start := time.Date(d.Year(), d.Month(), d.Day(), s.hour, s.minute, 0, 0, r.policy.Location)
			if !start.After(now) {
				continue
			}
			out = append(out, Window{Start: start, End: start.Add(duration)})
		}
	}
	return out
}

// Resolve returns the first candidate window that is free on the calendar and whose date
// no other client holds in the ledger. A nil window with a nil error means nothing fits.
func (r *WindowResolver) Resolve(
	ctx context.Context,
	c *client.Client,
	now time.Time,
	booked map[string]string,
	oracle calendar.AvailabilityChecker,
	opts ResolveOptions,
) (*Window, error) {
	log := r.logger.WithField("client_id", c.ID)
	earliest, latest := r.Bounds(now)
	log.Infof("Finding maintenance window for %s between %s and %s", c.FirstName,
		earliest.Format(ledger.DateLayout), latest.Format(ledger.DateLayout))

	candidates := r.Candidates(c.Maintenance, now, opts)
	if len(candidates) == 0 {
		log.Warnf("No potential dates found in range %d-%d", c.Maintenance.RangeFrom, c.Maintenance.RangeTo)
		return nil, nil
	}

	for _, w := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := w.Date()
		if holder, taken := booked[date]; taken && !r.policy.AllowMultipleBookingsPerDay {
			log.Debugf("Date %s already holds maintenance for client %s", date, holder)
			continue
		}

		ok, err := oracle.IsAvailable(ctx, w.Start, w.End)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).Warnf("Availability check failed for %s, treating slot as busy", w.Start.Format(time.RFC3339))
			continue
		}
		if ok {
			log.Infof("Found available slot on %s", w.Start.Format("Monday, January 02 15:04"))
			return &w, nil
		}
		log.Debugf("Slot not available on %s", w.Start.Format("Monday, January 02 15:04"))
	}

	log.Warn("No available slots found in any potential dates")
	return nil, nil
}

func (r *WindowResolver) preferredWeekdays(names []string) map[time.Weekday]struct{} {
	out := make(map[time.Weekday]struct{}, len(names))
	for _, n := range names {
		wd, ok := parseWeekday(n)
		if !ok {
			r.logger.Warnf("Ignoring unknown weekday %q", n)
			continue
		}
		out[wd] = struct{}{}
	}
	return out
}

func (r *WindowResolver) excludedDates(raw []string) map[string]struct{} {
	out := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		t, err := dateparse.ParseIn(strings.TrimSpace(s), r.policy.Location)
		if err != nil {
			r.logger.Warnf("Ignoring unparsable excluded date %q: %v", s, err)
			continue
		}
		out[t.Format(ledger.DateLayout)] = struct{}{}
	}
	return out
}

// timeSlots returns the preferred time, then alternately one hour earlier and later
// up to flexibility hours. Slots that would leave the day are dropped.
func timeSlots(preferred string, flexibility float64) []clockTime {
	base, ok := parseClock(preferred)
	if !ok {
		base = clockTime{hour: defaultSlotHour, minute: defaultSlotMinute}
	}

	slots := []clockTime{base}
	for offset := 1; offset <= int(flexibility); offset++ {
		if h := base.hour - offset; h >= 0 {
			slots = append(slots, clockTime{hour: h, minute: base.minute})
		}
		if h := base.hour + offset; h <= 23 {
			slots = append(slots, clockTime{hour: h, minute: base.minute})
		}
	}
	return slots
}

func parseClock(s string) (clockTime, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return clockTime{}, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return clockTime{}, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return clockTime{}, false
	}
	return clockTime{hour: h, minute: m}, true
}

func parseWeekday(name string) (time.Weekday, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToLower(wd.String())
		if n == full || (len(n) == 3 && strings.HasPrefix(full, n)) {
			return wd, true
		}
	}
	return 0, false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysIn(month time.Time) int {
	return time.Date(month.Year(), month.Month()+1, 0, 0, 0, 0, 0, month.Location()).Day()
}

package app

import (
	"time"

	"maintenance_scheduler/internal/domain/ledger"
)

// AlreadyNotified reports whether rec shows a notification sent, or a maintenance
// date recorded, in the calendar month of now. A nil record never blocks.
func AlreadyNotified(rec *ledger.Record, now time.Time) bool {
	if rec == nil {
		return false
	}
	month := now.Format("2006-01")
	return rec.SentInMonth(month) || rec.MaintenanceInMonth(month)
}

// CollisionGuard keeps two clients off the same maintenance date.
type CollisionGuard struct {
	AllowMultipleBookingsPerDay bool
}

// BookedDates maps each recorded maintenance date to the client holding it,
// leaving out clientID's own record.
func (g CollisionGuard) BookedDates(records map[string]ledger.Record, clientID string) map[string]string {
	out := make(map[string]string, len(records))
	if g.AllowMultipleBookingsPerDay {
		return out
	}
	for id, rec := range records {
		if id == clientID || rec.LastMaintenanceDate == "" {
			continue
		}
		out[rec.LastMaintenanceDate] = id
	}
	return out
}

// TakenBy returns the other client already holding date, if any.
func (g CollisionGuard) TakenBy(records map[string]ledger.Record, date time.Time, clientID string) (string, bool) {
	if g.AllowMultipleBookingsPerDay {
		return "", false
	}
	holder, ok := g.BookedDates(records, clientID)[date.Format(ledger.DateLayout)]
	return holder, ok
}

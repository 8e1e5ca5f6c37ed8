// internal/domain/ledger/record.go
package ledger

import (
	"errors"
	"time"
)

// DateLayout is the on-disk format of ledger dates.
const DateLayout = "2006-01-02"

var ErrRecordNotFound = errors.New("notification record not found")

// Record is the most recent notification sent to a client.
// There is at most one record per client id; writes overwrite it.
type Record struct {
	LastNotificationSent string `json:"last_notification_sent"`
	LastMaintenanceDate  string `json:"last_maintenance_date"`
}

// NewRecord builds a record from the send instant and the maintenance start.
func NewRecord(sentAt, maintenanceStart time.Time) Record {
	return Record{
		LastNotificationSent: sentAt.Format(DateLayout),
		LastMaintenanceDate:  maintenanceStart.Format(DateLayout),
	}
}

// SentInMonth reports whether the notification was sent in the given "YYYY-MM" month.
func (r Record) SentInMonth(month string) bool {
	return hasMonth(r.LastNotificationSent, month)
}

// MaintenanceInMonth reports whether the recorded maintenance date falls in the given "YYYY-MM" month.
func (r Record) MaintenanceInMonth(month string) bool {
	return hasMonth(r.LastMaintenanceDate, month)
}

func hasMonth(date, month string) bool {
	return len(date) >= 7 && date[:7] == month
}

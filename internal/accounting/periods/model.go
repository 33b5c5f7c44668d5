package periods

import (
	"time"

	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = internalShared.PeriodStatusOpen
	PeriodStatusClosed PeriodStatus = internalShared.PeriodStatusClosed
)

// Period represents one accounting month of a company.
type Period struct {
	ID        int64        `json:"id"`
	CompanyID int64        `json:"company_id"`
	Year      int          `json:"year"`
	Month     int          `json:"month"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	Status    PeriodStatus `json:"status"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
	ClosedBy  *int64       `json:"closed_by,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Covers reports whether date falls within the period range, inclusive.
func (p Period) Covers(date time.Time) bool {
	d := dateOnly(date)
	return !d.Before(dateOnly(p.StartDate)) && !d.After(dateOnly(p.EndDate))
}

// IsOpen reports whether postings are allowed.
func (p Period) IsOpen() bool {
	return p.Status == PeriodStatusOpen
}

// MonthRange returns the first and last day of the month.
func MonthRange(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

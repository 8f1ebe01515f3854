// Package classify derives compliance status and due buckets from imported
// recall rows. Everything here is pure date arithmetic so report and
// notification code can rely on deterministic output.
package classify

import "time"

// Status is the compliance classification of a single exam row.
type Status string

const (
	StatusNoHistory Status = "no_history"
	StatusPending   Status = "pending"
	StatusOverdue   Status = "overdue"
	StatusDue       Status = "due"
	StatusOnTrack   Status = "on_track"
)

// Bucket groups rows by coarse days-until-due ranges for reporting.
type Bucket int

const (
	BucketNone Bucket = 0
	Bucket30   Bucket = 30
	Bucket60   Bucket = 60
	Bucket90   Bucket = 90
	Bucket365  Bucket = 365
)

// dueHorizon is the window beyond which an exam counts as on track.
const dueHorizon = 365 * 24 * time.Hour

// ComputeStatus classifies one row. A row with no request history is
// NoHistory regardless of the other fields; a requested exam without a
// result is Pending. Otherwise the due date decides: at or before today is
// Overdue, within the next 365 days is Due, later is OnTrack.
//
// A classified row with both request and result but no computable due date
// is reported as Pending so it surfaces in reports instead of vanishing
// into OnTrack.
func ComputeStatus(lastRequest, result, due *time.Time, today time.Time) Status {
	if lastRequest == nil {
		return StatusNoHistory
	}
	if result == nil {
		return StatusPending
	}
	if due == nil {
		return StatusPending
	}

	today = truncateDay(today)
	d := truncateDay(*due)

	if !d.After(today) {
		return StatusOverdue
	}
	if !d.After(today.Add(dueHorizon)) {
		return StatusDue
	}
	return StatusOnTrack
}

// DaysUntilDue returns the whole days from today until the due date, or nil
// when the due date is missing or already past.
func DaysUntilDue(due *time.Time, today time.Time) *int {
	if due == nil {
		return nil
	}
	days := int(truncateDay(*due).Sub(truncateDay(today)).Hours() / 24)
	if days < 0 {
		return nil
	}
	return &days
}

// ComputeBucket maps days-until-due onto the report buckets using
// first-match inclusive ranges. Out-of-range values (negative, past the
// one-year horizon, or a nil days value) map to BucketNone.
func ComputeBucket(days *int) Bucket {
	if days == nil {
		return BucketNone
	}
	d := *days
	switch {
	case d >= 0 && d <= 30:
		return Bucket30
	case d >= 31 && d <= 60:
		return Bucket60
	case d >= 61 && d <= 90:
		return Bucket90
	case d >= 91 && d <= 365:
		return Bucket365
	default:
		return BucketNone
	}
}

// truncateDay reduces an instant to its own calendar day, anchored in UTC.
// Imported dates carry UTC while the comparison clock is host-local; using
// each value's own year/month/day keeps the comparison a pure calendar one
// regardless of either zone.
func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

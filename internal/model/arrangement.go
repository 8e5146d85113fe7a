package model

import "time"

// EditWindowDays is the number of days before departure at which an
// arrangement stops accepting edits and new reservations.
const EditWindowDays = 5

// DateLayout is the wire format for arrangement dates.
const DateLayout = "2006-01-02"

// Arrangement mirrors the `arrangements` table. SeatsAvailable is derived
// from the live reservation sum and is not stored.
type Arrangement struct {
	ID             uint64    // arrangements.id
	StartDate      time.Time // arrangements.start_date (DATE)
	EndDate        time.Time // arrangements.end_date (DATE)
	Description    string    // arrangements.description
	Destination    string    // arrangements.destination
	NumberOfSeats  int       // arrangements.number_of_seats
	Price          float64   // arrangements.price
	Cancelled      bool      // arrangements.cancelled
	GuideID        *uint64   // arrangements.guide_id (nullable)
	CreatorID      uint64    // arrangements.creator_id
	SeatsAvailable int       // number_of_seats - SUM(reservations.seats_needed)
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the number of whole calendar days from now to date.
func DaysUntil(date, now time.Time) int {
	return int(Day(date).Sub(Day(now)).Hours() / 24)
}

// EditWindowClosed reports whether the arrangement starts within
// EditWindowDays of now.
func (a Arrangement) EditWindowClosed(now time.Time) bool {
	return DaysUntil(a.StartDate, now) <= EditWindowDays
}

// Covers reports whether day falls within [StartDate, EndDate].
func (a Arrangement) Covers(day time.Time) bool {
	d := Day(day)
	return !d.Before(Day(a.StartDate)) && !d.After(Day(a.EndDate))
}

// HasGuide reports whether id is the assigned guide.
func (a Arrangement) HasGuide(id uint64) bool {
	return a.GuideID != nil && *a.GuideID == id
}

// SeatsAvailable returns capacity minus reserved, the derived value
// exposed on every arrangement view.
func SeatsAvailable(capacity, reserved int) int {
	return capacity - reserved
}

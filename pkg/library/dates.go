package library

import (
	"math"
	"time"
)

// DaysUntilDue returns the number of whole days until the due date,
// rounded up. The result is negative when the due date has passed.
func DaysUntilDue(dueDate, now time.Time) int {
	diff := dueDate.Sub(now)

	return int(math.Ceil(diff.Hours() / 24))
}

// IsOverdue reports whether an unreturned borrowing is past its due
// date. Returned borrowings are never overdue.
func IsOverdue(dueDate time.Time, returnedAt *time.Time, now time.Time) bool {
	if returnedAt != nil {
		return false
	}

	return dueDate.Before(now)
}

// IsDueSoon reports whether an unreturned borrowing falls due within
// the due-soon window.
func IsDueSoon(dueDate time.Time, returnedAt *time.Time, now time.Time) bool {
	if returnedAt != nil {
		return false
	}

	days := DaysUntilDue(dueDate, now)

	return days > 0 && days <= DueSoonDays
}

// StatusText classifies a borrowing for display: Returned, Overdue,
// Due Soon, or Active.
func StatusText(b *Borrowing, now time.Time) string {
	switch {
	case b.ReturnedAt != nil:
		return "Returned"
	case IsOverdue(b.DueDate, b.ReturnedAt, now):
		return "Overdue"
	case IsDueSoon(b.DueDate, b.ReturnedAt, now):
		return "Due Soon"
	default:
		return "Active"
	}
}

package library

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusText(t *testing.T) {
	now := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)
	returned := now.Add(-24 * time.Hour)

	tests := []struct {
		name      string
		borrowing Borrowing
		want      string
	}{
		{
			name: "returned",
			borrowing: Borrowing{
				DueDate:    now.Add(-48 * time.Hour),
				ReturnedAt: &returned,
			},
			want: "Returned",
		},
		{
			name: "overdue",
			borrowing: Borrowing{
				DueDate: now.Add(-1 * time.Hour),
			},
			want: "Overdue",
		},
		{
			name: "due soon",
			borrowing: Borrowing{
				DueDate: now.Add(48 * time.Hour),
			},
			want: "Due Soon",
		},
		{
			name: "active",
			borrowing: Borrowing{
				DueDate: now.AddDate(0, 0, 10),
			},
			want: "Active",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusText(&tt.borrowing, now))
		})
	}
}

func TestDaysUntilDue(t *testing.T) {
	now := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 14, DaysUntilDue(now.AddDate(0, 0, 14), now))
	assert.Equal(t, 1, DaysUntilDue(now.Add(12*time.Hour), now))
	assert.Equal(t, -2, DaysUntilDue(now.AddDate(0, 0, -2), now))
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	assert.True(t, IsOverdue(past, nil, now))
	assert.False(t, IsOverdue(past, &past, now), "returned is never overdue")
	assert.False(t, IsOverdue(now.Add(time.Hour), nil, now))
}

func TestParamsValues(t *testing.T) {
	avail := true
	p := BooksParams{Query: "clean", Genre: "Programming", Available: &avail, Sort: SortTitle, Page: 2, PerPage: 25}

	v := p.Values()
	assert.Equal(t, "clean", v.Get("query"))
	assert.Equal(t, "true", v.Get("available"))
	assert.Equal(t, "2", v.Get("page"))

	// Zero values stay out of the encoding so cache keys stay stable.
	assert.Empty(t, BooksParams{}.Values().Encode())
	assert.Empty(t, BorrowingsParams{}.Values().Encode())
}

package scheduler

import (
	"testing"
	"time"

	"dsanotifier/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeQuestions returns n questions with the first delivered marked as sent.
func makeQuestions(n, delivered int) []storage.Question {
	qs := make([]storage.Question, n)
	for i := range qs {
		qs[i] = storage.Question{
			Question:  "Q" + string(rune('A'+i)),
			Topic:     "Arrays",
			Category:  "Easy",
			Delivered: i < delivered,
		}
	}
	return qs
}

func TestCursorPolicy_Select(t *testing.T) {
	tests := []struct {
		name          string
		total         int
		delivered     int
		batchSize     int
		wantStatus    SelectionStatus
		wantPositions []int
	}{
		{"fresh list", 10, 0, 3, SelectionReady, []int{0, 1, 2}},
		{"resumes after delivered prefix", 10, 3, 3, SelectionReady, []int{3, 4, 5}},
		{"short final batch", 10, 8, 3, SelectionReady, []int{8, 9}},
		{"all delivered", 10, 10, 3, SelectionExhausted, nil},
		{"empty list", 0, 0, 3, SelectionExhausted, nil},
		{"batch larger than list", 2, 0, 6, SelectionReady, []int{0, 1}},
		{"non-positive batch uses default", 10, 0, 0, SelectionReady, []int{0, 1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs := makeQuestions(tt.total, tt.delivered)
			sel := CursorPolicy{}.Select(qs, tt.batchSize, time.Now())
			assert.Equal(t, tt.wantStatus, sel.Status)
			if tt.wantPositions == nil {
				assert.Empty(t, sel.Items)
				return
			}
			assert.Equal(t, tt.wantPositions, sel.Positions())
			for i, item := range sel.Items {
				assert.Equal(t, i+1, item.Number, "cursor numbering is batch-relative")
				assert.Equal(t, qs[item.Position], item.Question)
			}
		})
	}
}

func TestCursorPolicy_Properties(t *testing.T) {
	for total := 0; total <= 12; total++ {
		for delivered := 0; delivered <= total; delivered++ {
			for batch := 1; batch <= 7; batch++ {
				qs := makeQuestions(total, delivered)
				sel := CursorPolicy{}.Select(qs, batch, time.Time{})

				require.LessOrEqual(t, len(sel.Items), batch)
				if delivered == total {
					require.Equal(t, SelectionExhausted, sel.Status)
					continue
				}
				require.Equal(t, delivered, sel.Items[0].Position, "starts at first undelivered")
				for i, item := range sel.Items {
					require.Equal(t, delivered+i, item.Position, "contiguous")
					require.False(t, item.Question.Delivered)
				}
			}
		}
	}
}

func TestCursorPolicy_NonContiguousMarkers(t *testing.T) {
	qs := makeQuestions(6, 0)
	qs[0].Delivered = true
	qs[2].Delivered = true

	sel := CursorPolicy{}.Select(qs, 3, time.Now())
	// First undelivered, then the next B rows regardless of their markers.
	assert.Equal(t, []int{1, 2, 3}, sel.Positions())
}

func TestCursorPolicy_DoesNotMutateInput(t *testing.T) {
	qs := makeQuestions(5, 1)
	snapshot := append([]storage.Question(nil), qs...)
	CursorPolicy{}.Select(qs, 2, time.Now())
	assert.Equal(t, snapshot, qs)
}

func TestDateOffsetPolicy_Select(t *testing.T) {
	start := time.Date(2024, 12, 6, 0, 0, 0, 0, time.UTC)
	policy := DateOffsetPolicy{StartDate: start}

	tests := []struct {
		name          string
		today         time.Time
		total         int
		delivered     int
		wantStatus    SelectionStatus
		wantPositions []int
		wantNumbers   []int
	}{
		{
			name:          "first day",
			today:         time.Date(2024, 12, 6, 9, 30, 0, 0, time.UTC),
			total:         10,
			wantStatus:    SelectionReady,
			wantPositions: []int{0, 1, 2},
			wantNumbers:   []int{1, 2, 3},
		},
		{
			name:          "second day keeps global numbering",
			today:         time.Date(2024, 12, 7, 23, 59, 0, 0, time.UTC),
			total:         10,
			delivered:     3,
			wantStatus:    SelectionReady,
			wantPositions: []int{3, 4, 5},
			wantNumbers:   []int{4, 5, 6},
		},
		{
			name:          "partial last slice",
			today:         time.Date(2024, 12, 9, 0, 0, 0, 0, time.UTC),
			total:         10,
			wantStatus:    SelectionReady,
			wantPositions: []int{9},
			wantNumbers:   []int{10},
		},
		{
			name:       "before start date",
			today:      time.Date(2024, 12, 5, 12, 0, 0, 0, time.UTC),
			total:      10,
			wantStatus: SelectionNotStarted,
		},
		{
			name:       "past the end",
			today:      time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC),
			total:      10,
			wantStatus: SelectionExhausted,
		},
		{
			name:       "everything delivered",
			today:      time.Date(2024, 12, 6, 0, 0, 0, 0, time.UTC),
			total:      10,
			delivered:  10,
			wantStatus: SelectionExhausted,
		},
		{
			name:          "today's slice already delivered",
			today:         time.Date(2024, 12, 6, 0, 0, 0, 0, time.UTC),
			total:         10,
			delivered:     3,
			wantStatus:    SelectionAlreadyDelivered,
			wantPositions: []int{0, 1, 2},
			wantNumbers:   []int{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs := makeQuestions(tt.total, tt.delivered)
			sel := policy.Select(qs, 3, tt.today)
			assert.Equal(t, tt.wantStatus, sel.Status)
			if tt.wantPositions == nil {
				assert.Empty(t, sel.Items)
				return
			}
			assert.Equal(t, tt.wantPositions, sel.Positions())
			var numbers []int
			for _, item := range sel.Items {
				numbers = append(numbers, item.Number)
			}
			assert.Equal(t, tt.wantNumbers, numbers)
		})
	}
}

func TestDayOffset(t *testing.T) {
	loc := time.FixedZone("UTC+5:30", 5*3600+1800)
	start := time.Date(2024, 12, 6, 0, 0, 0, 0, loc)

	assert.Equal(t, 0, DayOffset(start, time.Date(2024, 12, 6, 23, 59, 0, 0, loc)))
	assert.Equal(t, 1, DayOffset(start, time.Date(2024, 12, 7, 0, 0, 0, 0, loc)))
	assert.Equal(t, -1, DayOffset(start, time.Date(2024, 12, 5, 8, 0, 0, 0, loc)))
	assert.Equal(t, 26, DayOffset(start, time.Date(2025, 1, 1, 9, 30, 0, 0, loc)))
	// Across a leap day
	assert.Equal(t, 366, DayOffset(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	))
}

func TestNewPolicy(t *testing.T) {
	start := time.Date(2024, 12, 6, 0, 0, 0, 0, time.UTC)

	p, err := NewPolicy(PolicyCursor, start)
	require.NoError(t, err)
	assert.Equal(t, PolicyCursor, p.Kind())

	p, err = NewPolicy(PolicyDateOffset, start)
	require.NoError(t, err)
	assert.Equal(t, PolicyDateOffset, p.Kind())
	assert.Equal(t, start, p.(DateOffsetPolicy).StartDate)

	_, err = NewPolicy("random", start)
	assert.Error(t, err)
}

func TestSelectionStatus_String(t *testing.T) {
	assert.Equal(t, "ready", SelectionReady.String())
	assert.Equal(t, "exhausted", SelectionExhausted.String())
	assert.Equal(t, "not_started", SelectionNotStarted.String())
	assert.Equal(t, "already_delivered", SelectionAlreadyDelivered.String())
	assert.Equal(t, "SelectionStatus(42)", SelectionStatus(42).String())
}

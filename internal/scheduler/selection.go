package scheduler

import (
	"fmt"
	"time"

	"dsanotifier/internal/storage"
)

// DefaultBatchSize is the number of questions sent per run when none is configured.
const DefaultBatchSize = 6

// PolicyKind names a selection policy.
type PolicyKind string

const (
	// PolicyCursor picks the first undelivered questions.
	PolicyCursor PolicyKind = "cursor"
	// PolicyDateOffset picks the slice belonging to today, counted from a start date.
	PolicyDateOffset PolicyKind = "date"
)

// SelectionStatus explains why a selection is or isn't empty.
type SelectionStatus int

const (
	SelectionReady SelectionStatus = iota
	// SelectionExhausted means every question has been delivered.
	SelectionExhausted
	// SelectionNotStarted means today is before the start date.
	SelectionNotStarted
	// SelectionAlreadyDelivered means today's slice went out on an earlier run.
	SelectionAlreadyDelivered
)

func (s SelectionStatus) String() string {
	switch s {
	case SelectionReady:
		return "ready"
	case SelectionExhausted:
		return "exhausted"
	case SelectionNotStarted:
		return "not_started"
	case SelectionAlreadyDelivered:
		return "already_delivered"
	default:
		return fmt.Sprintf("SelectionStatus(%d)", int(s))
	}
}

// BatchItem is a selected question along with where it came from.
type BatchItem struct {
	Position int // index in the loaded sequence
	Number   int // number shown in the message
	Question storage.Question
}

// Selection is the result of applying a policy.
type Selection struct {
	Status SelectionStatus
	Items  []BatchItem
}

// Positions returns the original positions of the selected items.
func (s Selection) Positions() []int {
	positions := make([]int, len(s.Items))
	for i, item := range s.Items {
		positions[i] = item.Position
	}
	return positions
}

// SelectionPolicy chooses the batch for a run. Implementations must not
// modify questions.
type SelectionPolicy interface {
	Kind() PolicyKind
	Select(questions []storage.Question, batchSize int, today time.Time) Selection
}

// NewPolicy returns the policy for kind. startDate is only used by PolicyDateOffset.
func NewPolicy(kind PolicyKind, startDate time.Time) (SelectionPolicy, error) {
	switch kind {
	case PolicyCursor:
		return CursorPolicy{}, nil
	case PolicyDateOffset:
		return DateOffsetPolicy{StartDate: startDate}, nil
	default:
		return nil, fmt.Errorf("unknown selection policy %q", kind)
	}
}

// CursorPolicy selects batchSize questions starting at the first undelivered
// one. Items are numbered from 1 within the batch.
type CursorPolicy struct{}

func (CursorPolicy) Kind() PolicyKind { return PolicyCursor }

func (CursorPolicy) Select(questions []storage.Question, batchSize int, _ time.Time) Selection {
	batchSize = normalizeBatchSize(batchSize)

	start := -1
	for i, q := range questions {
		if !q.Delivered {
			start = i
			break
		}
	}
	if start < 0 {
		return Selection{Status: SelectionExhausted}
	}

	end := min(start+batchSize, len(questions))
	items := make([]BatchItem, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, BatchItem{
			Position: i,
			Number:   i - start + 1,
			Question: questions[i],
		})
	}
	return Selection{Status: SelectionReady, Items: items}
}

// DateOffsetPolicy selects slice number (today - StartDate) of size
// batchSize. Items keep their global numbering across days.
type DateOffsetPolicy struct {
	StartDate time.Time
}

func (DateOffsetPolicy) Kind() PolicyKind { return PolicyDateOffset }

func (p DateOffsetPolicy) Select(questions []storage.Question, batchSize int, today time.Time) Selection {
	batchSize = normalizeBatchSize(batchSize)

	if allDelivered(questions) {
		return Selection{Status: SelectionExhausted}
	}

	offset := DayOffset(p.StartDate, today)
	if offset < 0 {
		return Selection{Status: SelectionNotStarted}
	}

	start := offset * batchSize
	if start >= len(questions) {
		return Selection{Status: SelectionExhausted}
	}
	end := min(start+batchSize, len(questions))

	items := make([]BatchItem, 0, end-start)
	pending := false
	for i := start; i < end; i++ {
		if !questions[i].Delivered {
			pending = true
		}
		// offset*batchSize + (i-start) + 1 collapses to i+1
		items = append(items, BatchItem{
			Position: i,
			Number:   i + 1,
			Question: questions[i],
		})
	}
	if !pending {
		return Selection{Status: SelectionAlreadyDelivered, Items: items}
	}
	return Selection{Status: SelectionReady, Items: items}
}

// DayOffset returns the number of calendar days from start to today. Both
// dates are taken in today's location, so the result does not depend on the
// time of day.
func DayOffset(start, today time.Time) int {
	loc := today.Location()
	s := start.In(loc)
	a := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func allDelivered(questions []storage.Question) bool {
	for _, q := range questions {
		if !q.Delivered {
			return false
		}
	}
	return true
}

func normalizeBatchSize(n int) int {
	if n <= 0 {
		return DefaultBatchSize
	}
	return n
}

package app

import (
	"context"
	"fmt"
	"time"

	"dsanotifier/internal/scheduler"
	"dsanotifier/internal/storage"
)

// Status is a snapshot of delivery progress.
type Status struct {
	QuestionsFile string              `json:"questions_file"`
	Policy        string              `json:"policy"`
	Total         int                 `json:"total"`
	Delivered     int                 `json:"delivered"`
	Remaining     int                 `json:"remaining"`
	Selection     string              `json:"selection"`
	NextBatch     []BatchEntry        `json:"next_batch"`
	NextRun       time.Time           `json:"next_run"`
	Stats         *storage.RunStats   `json:"stats,omitempty"`
	RecentRuns    []storage.RunRecord `json:"recent_runs,omitempty"`
}

// BatchEntry is one question of the upcoming batch.
type BatchEntry struct {
	Number   int    `json:"number"`
	Question string `json:"question"`
	Topic    string `json:"topic"`
	Category string `json:"category"`
}

// Status reports progress through the questions file, the batch the next
// run would send, and recent history when it is enabled. A questions file
// that cannot be loaded is an error.
func (a *Application) Status(ctx context.Context) (*Status, error) {
	questions, sel, err := a.Job.Preview(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	st := &Status{
		QuestionsFile: a.Store.Path(),
		Policy:        string(a.Job.Policy().Kind()),
		Total:         len(questions),
		Selection:     sel.Status.String(),
		NextRun:       a.Scheduler.Next(),
	}
	if st.NextRun.IsZero() {
		if loc, err := a.Config.Location(); err == nil {
			st.NextRun, _ = scheduler.NextRun(a.Config.Schedule.SendTime, time.Now().In(loc))
		}
	}
	for _, q := range questions {
		if q.Delivered {
			st.Delivered++
		}
	}
	st.Remaining = st.Total - st.Delivered

	if sel.Status == scheduler.SelectionReady {
		for _, item := range sel.Items {
			st.NextBatch = append(st.NextBatch, BatchEntry{
				Number:   item.Number,
				Question: item.Question.Question,
				Topic:    item.Question.Topic,
				Category: item.Question.Category,
			})
		}
	}

	if a.History != nil {
		if st.Stats, err = a.History.RunStats(ctx); err != nil {
			return nil, err
		}
		if st.RecentRuns, err = a.History.ListRecentRuns(ctx, recentRunsLimit); err != nil {
			return nil, err
		}
	}

	return st, nil
}

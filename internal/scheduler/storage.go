package scheduler

import (
	"context"

	"dsanotifier/internal/storage"
)

// QuestionStore loads and persists the full, ordered question list.
type QuestionStore interface {
	// LoadAll returns every question in file order
	LoadAll(ctx context.Context) ([]storage.Question, error)

	// SaveAll replaces the stored list with questions
	SaveAll(ctx context.Context, questions []storage.Question) error
}

// Sender delivers a text message to a channel. A nil error means the
// remote side accepted the message.
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// RunRecorder appends run outcomes to a history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *storage.RunRecord) error
}

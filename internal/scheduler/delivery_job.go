package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dsanotifier/internal/metrics"
	"dsanotifier/internal/storage"

	"github.com/google/uuid"
)

var errNoQuestions = errors.New("questions file has no rows")

// JobOptions configures a DeliveryJob.
type JobOptions struct {
	ChannelID   string
	BatchSize   int
	Policy      SelectionPolicy
	SendTimeout time.Duration

	// Location is the time zone "today" is computed in. Defaults to time.Local.
	Location *time.Location
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Outcome describes what a single run did.
type Outcome struct {
	RunID     string
	Status    storage.RunStatus
	Positions []int // positions of the selected batch, if any
	Delivered int   // questions newly marked as delivered
	Remaining int   // questions still undelivered after the run
	Err       error
}

// FirstPosition returns the position of the first selected question, or -1.
func (o Outcome) FirstPosition() int {
	if len(o.Positions) == 0 {
		return -1
	}
	return o.Positions[0]
}

// DeliveryJob runs one load, select, send, persist cycle.
type DeliveryJob struct {
	logger   *slog.Logger
	store    QuestionStore
	sender   Sender
	recorder RunRecorder
	opts     JobOptions
}

// NewDeliveryJob creates a new DeliveryJob. recorder may be nil.
func NewDeliveryJob(
	logger *slog.Logger,
	store QuestionStore,
	sender Sender,
	recorder RunRecorder,
	opts JobOptions,
) *DeliveryJob {
	if opts.Policy == nil {
		opts.Policy = CursorPolicy{}
	}
	opts.BatchSize = normalizeBatchSize(opts.BatchSize)
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &DeliveryJob{
		logger:   logger,
		store:    store,
		sender:   sender,
		recorder: recorder,
		opts:     opts,
	}
}

// Policy returns the selection policy the job uses.
func (j *DeliveryJob) Policy() SelectionPolicy {
	return j.opts.Policy
}

// Preview returns the batch the next run would select, without sending anything.
func (j *DeliveryJob) Preview(ctx context.Context) ([]storage.Question, Selection, error) {
	questions, err := j.store.LoadAll(ctx)
	if err != nil {
		return nil, Selection{}, err
	}
	return questions, j.opts.Policy.Select(questions, j.opts.BatchSize, j.today()), nil
}

// Run executes the delivery cycle once. Failures end the run but are never
// returned as errors; they are reported in the Outcome.
func (j *DeliveryJob) Run(ctx context.Context) Outcome {
	started := j.opts.Now()
	out := Outcome{RunID: uuid.NewString()}
	logger := j.logger.With("run_id", out.RunID, "policy", string(j.opts.Policy.Kind()))

	logger.Info("running delivery job")
	j.run(ctx, logger, &out)
	finished := j.opts.Now()

	metrics.RunsTotal.WithLabelValues(string(out.Status)).Inc()
	metrics.RunDuration.Observe(finished.Sub(started).Seconds())
	if out.Status != storage.RunStatusLoadFailed {
		metrics.QuestionsRemaining.Set(float64(out.Remaining))
	}

	j.record(ctx, logger, out, started, finished)

	attrs := []any{"status", out.Status, "delivered", out.Delivered, "remaining", out.Remaining}
	if out.Err != nil {
		logger.Warn("delivery job finished with error", append(attrs, "error", out.Err)...)
	} else {
		logger.Info("delivery job finished", attrs...)
	}
	return out
}

func (j *DeliveryJob) run(ctx context.Context, logger *slog.Logger, out *Outcome) {
	// 1. Load questions
	questions, err := j.store.LoadAll(ctx)
	if err == nil && len(questions) == 0 {
		err = errNoQuestions
	}
	if err != nil {
		logger.Error("failed to load questions", "error", err)
		out.Status = storage.RunStatusLoadFailed
		out.Err = fmt.Errorf("load questions: %w", err)
		_ = j.notify(ctx, logger, LoadErrorMessage)
		return
	}
	out.Remaining = countPending(questions)
	logger.Debug("questions loaded", "total", len(questions), "pending", out.Remaining)

	// 2. Select today's batch
	sel := j.opts.Policy.Select(questions, j.opts.BatchSize, j.today())
	switch sel.Status {
	case SelectionExhausted:
		logger.Info("all questions have been delivered")
		out.Status = storage.RunStatusCompleted
		out.Err = j.notify(ctx, logger, RenderMessage(nil))
		return
	case SelectionNotStarted:
		logger.Info("current date is before the start date, nothing to send")
		out.Status = storage.RunStatusNotStarted
		out.Err = j.notify(ctx, logger, NotStartedMessage)
		return
	case SelectionAlreadyDelivered:
		logger.Info("today's questions are already marked as delivered")
		out.Status = storage.RunStatusAlreadyDelivered
		out.Positions = sel.Positions()
		return
	}
	out.Positions = sel.Positions()
	logger.Debug("batch selected", "first_position", out.FirstPosition(), "size", len(out.Positions))

	// 3. Render and send
	if err := j.notify(ctx, logger, RenderMessageWith(sel.Items, j.escape())); err != nil {
		logger.Warn("failed to send today's questions, will retry on next run", "error", err)
		out.Status = storage.RunStatusSendFailed
		out.Err = err
		return
	}

	// 4. Mark and persist. The send is confirmed, so the write goes ahead
	// even if ctx was canceled in the meantime.
	for _, pos := range out.Positions {
		questions[pos].Delivered = true
	}
	if err := j.store.SaveAll(context.WithoutCancel(ctx), questions); err != nil {
		logger.Error("failed to persist delivered questions, batch will be sent again", "error", err)
		out.Status = storage.RunStatusSaveFailed
		out.Err = fmt.Errorf("save questions: %w", err)
		return
	}

	out.Status = storage.RunStatusDelivered
	out.Delivered = len(out.Positions)
	out.Remaining = countPending(questions)
	metrics.QuestionsDelivered.Add(float64(out.Delivered))
}

func (j *DeliveryJob) notify(ctx context.Context, logger *slog.Logger, text string) error {
	sendCtx := ctx
	if j.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, j.opts.SendTimeout)
		defer cancel()
	}

	if err := j.sender.Send(sendCtx, j.opts.ChannelID, text); err != nil {
		metrics.SendsTotal.WithLabelValues("error").Inc()
		logger.Error("failed to send message", "channel", j.opts.ChannelID, "error", err)
		return fmt.Errorf("send message: %w", err)
	}
	metrics.SendsTotal.WithLabelValues("ok").Inc()
	logger.Info("message sent", "channel", j.opts.ChannelID)
	return nil
}

func (j *DeliveryJob) record(ctx context.Context, logger *slog.Logger, out Outcome, started, finished time.Time) {
	if j.recorder == nil {
		return
	}
	run := &storage.RunRecord{
		ID:            out.RunID,
		Policy:        string(j.opts.Policy.Kind()),
		Status:        out.Status,
		FirstPosition: out.FirstPosition(),
		QuestionCount: len(out.Positions),
		StartedAt:     started,
		FinishedAt:    finished,
	}
	if out.Err != nil {
		run.Error = out.Err.Error()
	}
	if err := j.recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed to record run history", "error", err)
	}
}

func (j *DeliveryJob) escape() func(string) string {
	if e, ok := j.sender.(TextEscaper); ok {
		return e.EscapeText
	}
	return nil
}

func (j *DeliveryJob) today() time.Time {
	return j.opts.Now().In(j.opts.Location)
}

func countPending(questions []storage.Question) int {
	n := 0
	for _, q := range questions {
		if !q.Delivered {
			n++
		}
	}
	return n
}

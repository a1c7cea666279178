package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dsanotifier/internal/config"
	"dsanotifier/internal/scheduler"
	"dsanotifier/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQuestionsCSV = `Question,Topic,Category,Pushed
Two Sum,Arrays,Easy,False
Valid Anagram,Strings,Easy,False
Merge Intervals,Arrays,Medium,False
LRU Cache,Design,Medium,False
Word Ladder,Graphs,Hard,False
Median of Two Sorted Arrays,Binary Search,Hard,False
Coin Change,DP,Medium,False
Trapping Rain Water,Two Pointers,Hard,False
`

type recordingSender struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (s *recordingSender) Send(ctx context.Context, channelID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, text)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "questions.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(testQuestionsCSV), 0644))

	cfg := config.Default()
	cfg.Questions.FilePath = csvPath
	cfg.Questions.PerDay = 3
	cfg.Schedule.Timezone = "UTC"
	cfg.Notifier.Provider = config.ProviderTelegram
	cfg.Notifier.Channel = "@dsa_daily"
	cfg.Telegram.BotToken = "123:abc"
	cfg.History.DBPath = filepath.Join(dir, "history.db")
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, sender scheduler.Sender) *Application {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := newApplication(context.Background(), cfg, logger, sender)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestNewApplication(t *testing.T) {
	cfg := testConfig(t)
	app := newTestApp(t, cfg, &recordingSender{})

	assert.NotNil(t, app.Config, "Config should be initialized")
	assert.NotNil(t, app.Logger, "Logger should be initialized")
	assert.NotNil(t, app.Store, "Store should be initialized")
	assert.NotNil(t, app.History, "History should be initialized")
	assert.NotNil(t, app.Job, "Job should be initialized")
	assert.NotNil(t, app.Scheduler, "Scheduler should be initialized")
	assert.Nil(t, app.MetricsServer, "metrics are disabled by default")
	assert.Equal(t, scheduler.PolicyCursor, app.Job.Policy().Kind())
}

func TestNewApplication_WithoutHistoryWithMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.DBPath = ""
	cfg.MetricsPort = 9464

	app := newTestApp(t, cfg, &recordingSender{})
	assert.Nil(t, app.History)
	require.NotNil(t, app.MetricsServer)
	assert.Equal(t, ":9464", app.MetricsServer.Addr)
}

func TestNewApplication_InvalidSendTime(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.SendTime = "soon"

	_, err := newApplication(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), &recordingSender{})
	assert.Error(t, err)
}

func TestNewApplication_UnknownPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.Policy = "random"

	_, err := newApplication(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), &recordingSender{})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewApplication_BadStartDateFallsBackToToday(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.Policy = "date"
	cfg.Schedule.StartDate = "not-a-date"

	var logs bytes.Buffer
	app, err := newApplication(context.Background(), cfg, slog.New(slog.NewTextHandler(&logs, nil)), &recordingSender{})
	require.NoError(t, err)
	t.Cleanup(app.Close)

	policy, ok := app.Job.Policy().(scheduler.DateOffsetPolicy)
	require.True(t, ok)
	today := time.Now().UTC()
	assert.Equal(t, time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC), policy.StartDate)
	assert.Contains(t, logs.String(), "invalid or missing start date")
}

func TestNewApplication_StartDate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.Policy = "date"
	cfg.Schedule.StartDate = "2024-12-06"

	app := newTestApp(t, cfg, &recordingSender{})
	policy, ok := app.Job.Policy().(scheduler.DateOffsetPolicy)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 12, 6, 0, 0, 0, 0, time.UTC), policy.StartDate)
}

func TestApplication_RunOnceAndStatus(t *testing.T) {
	cfg := testConfig(t)
	sender := &recordingSender{}
	app := newTestApp(t, cfg, sender)
	ctx := context.Background()

	out := app.RunOnce(ctx)
	require.NoError(t, out.Err)
	assert.Equal(t, storage.RunStatusDelivered, out.Status)
	assert.Equal(t, []int{0, 1, 2}, out.Positions)
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], "*Question 1:* Two Sum")

	st, err := app.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, st.Total)
	assert.Equal(t, 3, st.Delivered)
	assert.Equal(t, 5, st.Remaining)
	assert.Equal(t, "cursor", st.Policy)
	assert.Equal(t, "ready", st.Selection)
	require.Len(t, st.NextBatch, 3)
	assert.Equal(t, "LRU Cache", st.NextBatch[0].Question)
	assert.Equal(t, 1, st.NextBatch[0].Number)
	assert.False(t, st.NextRun.IsZero())

	require.NotNil(t, st.Stats)
	assert.Equal(t, int64(1), st.Stats.TotalRuns)
	assert.Equal(t, int64(3), st.Stats.QuestionsDelivered)
	require.Len(t, st.RecentRuns, 1)
	assert.Equal(t, out.RunID, st.RecentRuns[0].ID)
}

func TestApplication_RunOnceSendFailureLeavesFileUntouched(t *testing.T) {
	cfg := testConfig(t)
	app := newTestApp(t, cfg, &recordingSender{err: assert.AnError})

	out := app.RunOnce(context.Background())
	assert.Equal(t, storage.RunStatusSendFailed, out.Status)

	data, err := os.ReadFile(cfg.Questions.FilePath)
	require.NoError(t, err)
	assert.Equal(t, testQuestionsCSV, string(data))
}

func TestApplication_StatusMissingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Questions.FilePath = filepath.Join(t.TempDir(), "missing.csv")
	app := newTestApp(t, cfg, &recordingSender{})

	_, err := app.Status(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplication_StartStop(t *testing.T) {
	cfg := testConfig(t)
	sender := &recordingSender{}
	app := newTestApp(t, cfg, sender)

	require.NoError(t, app.Start(context.Background()))
	assert.False(t, app.Scheduler.Next().IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Stop(ctx))
	assert.Nil(t, app.History)
	assert.Empty(t, sender.messages)
}

func TestNewReadOnly(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewReadOnly(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer app.Close()

	st, err := app.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, st.Remaining)

	out := app.RunOnce(context.Background())
	assert.Equal(t, storage.RunStatusSendFailed, out.Status)
	assert.ErrorIs(t, out.Err, errOffline)
}

// closedServerURL returns the address of a server that is no longer listening.
func closedServerURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

func TestNew_ProviderUnreachable(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config, url string)
		warning string
	}{
		{
			name: "telegram",
			mutate: func(cfg *config.Config, url string) {
				cfg.Telegram.APIEndpoint = url + "/bot%s/%s"
			},
			warning: "telegram is not reachable",
		},
		{
			name: "slack",
			mutate: func(cfg *config.Config, url string) {
				cfg.Notifier.Provider = config.ProviderSlack
				cfg.Notifier.Channel = "C123"
				cfg.Slack.BotToken = "xoxb-test"
				cfg.Slack.APIURL = url + "/api/"
			},
			warning: "slack is not reachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg, closedServerURL(t))
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))

			app, err := New(context.Background(), cfg, logger)
			require.NoError(t, err)
			defer app.Close()
			assert.Contains(t, logs.String(), tt.warning)

			out := app.RunOnce(context.Background())
			assert.Equal(t, storage.RunStatusSendFailed, out.Status)
			assert.Error(t, out.Err)

			data, err := os.ReadFile(cfg.Questions.FilePath)
			require.NoError(t, err)
			assert.Equal(t, testQuestionsCSV, string(data))
		})
	}
}

func TestHistoryPrunedOnlyByNew(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telegram.APIEndpoint = closedServerURL(t) + "/bot%s/%s"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	finished := time.Now().Add(-200 * 24 * time.Hour)
	db, err := storage.NewSQLiteStorage(cfg.History.DBPath)
	require.NoError(t, err)
	require.NoError(t, db.RecordRun(context.Background(), &storage.RunRecord{
		ID:            uuid.NewString(),
		Policy:        "cursor",
		Status:        storage.RunStatusDelivered,
		QuestionCount: 3,
		StartedAt:     finished.Add(-time.Second),
		FinishedAt:    finished,
	}))
	require.NoError(t, db.Close())

	readOnly, err := NewReadOnly(context.Background(), cfg, logger)
	require.NoError(t, err)
	st, err := readOnly.Status(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.RecentRuns, 1)
	readOnly.Close()

	app, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer app.Close()
	st, err = app.Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.RecentRuns)
}

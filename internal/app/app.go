package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"dsanotifier/internal/config"
	"dsanotifier/internal/scheduler"
	"dsanotifier/internal/slack"
	"dsanotifier/internal/storage"
	"dsanotifier/internal/telegram"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// recentRunsLimit is how many history entries Status returns.
const recentRunsLimit = 10

// Application holds all the major components of the service.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         *storage.CSVQuestionStore
	History       storage.Storage // nil when history is disabled
	Job           *scheduler.DeliveryJob
	Scheduler     *scheduler.Scheduler
	MetricsServer *http.Server // nil when metrics_port is 0
}

// New creates and initializes a new Application instance. The messaging
// provider is checked but not required to be reachable; an outage shows up
// as a failed send in the next run. Old history entries are pruned.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app, err := newApplication(ctx, cfg, logger, sender)
	if err != nil {
		return nil, err
	}
	app.pruneHistory(ctx)
	return app, nil
}

var errOffline = errors.New("application was opened read-only")

type offlineSender struct{}

func (offlineSender) Send(context.Context, string, string) error { return errOffline }

// NewReadOnly creates an Application that never contacts the messaging
// provider. Runs fail at the send step; it is meant for Status.
func NewReadOnly(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	return newApplication(ctx, cfg, logger, offlineSender{})
}

func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (scheduler.Sender, error) {
	client := &http.Client{Timeout: cfg.Notifier.SendTimeout.Duration}
	switch cfg.Notifier.Provider {
	case config.ProviderSlack:
		svc, err := slack.NewService(cfg.Slack.BotToken, logger.With("component", "slack"), slack.Options{
			APIURL:     cfg.Slack.APIURL,
			HTTPClient: client,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		if err := svc.CheckAuth(ctx); err != nil {
			logger.Warn("slack is not reachable, continuing", "error", err)
		}
		return svc, nil
	case config.ProviderTelegram:
		svc, err := telegram.NewService(cfg.Telegram.BotToken, logger.With("component", "telegram"), telegram.Options{
			APIEndpoint: cfg.Telegram.APIEndpoint,
			HTTPClient:  client,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		if err := svc.CheckAuth(); err != nil {
			logger.Warn("telegram is not reachable, continuing", "error", err)
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("%w: unknown notifier provider %q", config.ErrInvalid, cfg.Notifier.Provider)
	}
}

func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, sender scheduler.Sender) (*Application, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	// Setup: Question store
	store := storage.NewCSVQuestionStore(cfg.Questions.FilePath)

	// Setup: Run history
	var history storage.Storage
	var recorder scheduler.RunRecorder
	if cfg.History.DBPath != "" {
		db, err := storage.NewSQLiteStorage(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		history = db
		recorder = db
	}

	// Setup: Delivery job
	policy, err := newPolicy(cfg, loc, logger)
	if err != nil {
		closeHistory(history, logger)
		return nil, err
	}
	job := scheduler.NewDeliveryJob(logger.With("component", "delivery"), store, sender, recorder, scheduler.JobOptions{
		ChannelID:   cfg.Notifier.Channel,
		BatchSize:   cfg.Questions.PerDay,
		Policy:      policy,
		SendTimeout: cfg.Notifier.SendTimeout.Duration,
		Location:    loc,
	})

	// Setup: Scheduler
	// Runs outlive ctx so a shutdown lets them finish; Stop bounds the wait.
	sched, err := scheduler.NewScheduler(context.WithoutCancel(ctx), job, cfg.Schedule.SendTime, loc, logger.With("component", "scheduler"))
	if err != nil {
		closeHistory(history, logger)
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	app := &Application{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		History:   history,
		Job:       job,
		Scheduler: sched,
	}

	// Setup: HTTP Server for metrics
	if cfg.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsMux.HandleFunc("/healthz", app.handleHealth)
		metricsMux.HandleFunc("/status", app.handleStatus)
		app.MetricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:           app.logRequests(metricsMux),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return app, nil
}

// newPolicy builds the configured selection policy. An unusable start date
// for the date policy falls back to today.
func newPolicy(cfg *config.Config, loc *time.Location, logger *slog.Logger) (scheduler.SelectionPolicy, error) {
	kind := scheduler.PolicyKind(cfg.Schedule.Policy)

	var start time.Time
	if kind == scheduler.PolicyDateOffset {
		var err error
		start, err = cfg.ParseStartDate(loc)
		if err != nil {
			now := time.Now().In(loc)
			start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
			logger.Warn("invalid or missing start date, using today",
				"start_date", cfg.Schedule.StartDate, "today", start.Format(config.StartDateLayout), "error", err)
		}
	}

	policy, err := scheduler.NewPolicy(kind, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return policy, nil
}

// Start begins the application's services.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Info("starting application services",
		"provider", a.Config.Notifier.Provider,
		"policy", a.Config.Schedule.Policy,
		"send_time", a.Config.Schedule.SendTime,
		"questions_file", a.Store.Path())

	a.Scheduler.Start()
	a.Logger.Info("scheduler started", "next_run", a.Scheduler.Next())

	if a.MetricsServer != nil {
		go func() {
			a.Logger.Info("starting metrics server", "addr", a.MetricsServer.Addr)
			if err := a.MetricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	return nil
}

// RunOnce runs a single delivery cycle.
func (a *Application) RunOnce(ctx context.Context) scheduler.Outcome {
	return a.Job.Run(ctx)
}

// Stop gracefully shuts down the application's services. An in-flight run is
// allowed to finish unless ctx expires first.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Info("stopping application services")

	if a.MetricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("metrics server shutdown error", "error", err)
		}
	}

	err := a.Scheduler.Stop(ctx)
	if err != nil {
		a.Logger.Warn("scheduler did not stop cleanly", "error", err)
	} else {
		a.Logger.Info("scheduler stopped")
	}

	a.Close()
	a.Logger.Info("application stopped gracefully")
	return err
}

func (a *Application) pruneHistory(ctx context.Context) {
	if a.History == nil {
		return
	}
	n, err := a.History.PruneRuns(ctx, a.Config.History.Retention.Duration)
	if err != nil {
		a.Logger.Warn("failed to prune run history", "error", err)
	} else if n > 0 {
		a.Logger.Info("pruned run history", "removed", n)
	}
}

// Close releases the run history database.
func (a *Application) Close() {
	closeHistory(a.History, a.Logger)
	a.History = nil
}

func closeHistory(history storage.Storage, logger *slog.Logger) {
	if history == nil {
		return
	}
	if err := history.Close(); err != nil {
		logger.Warn("error closing run history", "error", err)
	}
}

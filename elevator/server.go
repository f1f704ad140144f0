package elevator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"tangled.sh/tangled.sh/elevator/elevator/config"
	"tangled.sh/tangled.sh/elevator/elevator/queue"
	"tangled.sh/tangled.sh/elevator/elevator/scheduler"
	"tangled.sh/tangled.sh/elevator/elevator/webhook"
	"tangled.sh/tangled.sh/elevator/elevator/workflow"
	"tangled.sh/tangled.sh/elevator/log"
	"tangled.sh/tangled.sh/elevator/telemetry"
)

const version = "0.1.0"

func Command() *cli.Command {
	return &cli.Command{
		Name:   "server",
		Usage:  "run the elevation webhook server and demotion runner",
		Action: Run,
		Description: `
Environment variables:
	ELEVATOR_SERVER_LISTEN_ADDR       (default: 0.0.0.0:7555)
	ELEVATOR_SERVER_DB_PATH           (default: elevator.db)
	ELEVATOR_SERVER_LOG_LEVEL         (default: info)
	ELEVATOR_SERVER_WORKSPACE         (default: dev)
	ELEVATOR_SERVER_DEV               (default: false)
	ELEVATOR_GITHUB_API_URL           (default: https://api.github.com)
	ELEVATOR_GITHUB_ESCALATION_TEAM   (default: can-escalate-to-become-an-owner)
	ELEVATOR_GITHUB_BOT_LOGIN         (default: elevatemetoowner[bot])
	ELEVATOR_ELEVATION_DURATION       (default: 1h)
	ELEVATOR_STORE_PROVIDER           (sqlite|redis, default: sqlite)
	ELEVATOR_SECRETS_PROVIDER         (env|openbao, default: env)
	ELEVATOR_SCHEDULER_POLL_INTERVAL  (default: 5s)
	ELEVATOR_POSTHOG_API_KEY
	ELEVATOR_TELEMETRY_ENABLED        (default: false)
`,
	}
}

type Server struct {
	cfg     *config.Config
	d       *deps
	hook    *webhook.Handler
	tel     *telemetry.Telemetry
	reg     *prometheus.Registry
	l       *slog.Logger
	started time.Time
}

func Run(ctx context.Context, cmd *cli.Command) error {
	logger := log.FromContext(ctx)

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.SetLevel(cfg.Server.LogLevel)
	logger = log.SubLogger(logger, cmd.Name)
	ctx = log.IntoContext(ctx, logger)

	tel, err := telemetry.NewTelemetry(ctx, "elevator", version, cfg.Telemetry.Enabled, cfg.Server.Dev, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer tel.Shutdown(context.WithoutCancel(ctx))

	d, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := scheduler.NewSqliteScheduler(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("failed to setup scheduler: %w", err)
	}
	defer sched.Stop()

	reg := prometheus.NewRegistry()
	metrics := webhook.NewMetrics(reg)

	machine := workflow.NewMachine(d.client, d.store, sched, d.notifier, workflow.Settings{
		EscalationTeam: cfg.GitHub.EscalationTeam,
		BotLogin:       cfg.GitHub.BotLogin,
		WaitSeconds:    cfg.Elevation.WaitSeconds(),
	}, log.SubLogger(logger, "workflow"))

	// starts the demotion workers in the background
	jq := queue.NewQueue(cfg.Scheduler.QueueSize, cfg.Scheduler.Workers)
	jq.Start()
	defer jq.Stop()

	runner := scheduler.NewRunner(sched, jq, d.executor(metrics, log.SubLogger(logger, "demoter")), cfg.Scheduler.PollInterval, log.SubLogger(logger, "scheduler"))
	// deferred after jq.Stop, so the runner is gone before the queue closes
	stopRunner := runner.Start(ctx)
	defer stopRunner()

	s := &Server{
		cfg:     cfg,
		d:       d,
		hook:    webhook.NewHandler(d.secrets, d.auth, machine, metrics, log.SubLogger(logger, "webhook")),
		tel:     tel,
		reg:     reg,
		l:       logger,
		started: time.Now(),
	}

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.WithoutCancel(ctx))
	}()

	logger.Info("starting elevator server", "address", cfg.Server.ListenAddr, "workspace", cfg.Server.Workspace)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		return err
	}
	return nil
}

func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(s.RequestLogger)
	mux.Use(s.tel.TraceRequests)

	mux.Method(http.MethodPost, "/webhook", s.hook)
	mux.Get("/health", s.Health)
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	return mux
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","version":%q,"uptime":%q}`, version, time.Since(s.started).Round(time.Second).String())
}

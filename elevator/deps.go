package elevator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/posthog/posthog-go"
	"github.com/redis/go-redis/v9"
	"tangled.sh/tangled.sh/elevator/elevator/config"
	"tangled.sh/tangled.sh/elevator/elevator/models"
	"tangled.sh/tangled.sh/elevator/elevator/notify"
	phnotify "tangled.sh/tangled.sh/elevator/elevator/notify/posthog"
	"tangled.sh/tangled.sh/elevator/elevator/secrets"
	"tangled.sh/tangled.sh/elevator/elevator/store"
	"tangled.sh/tangled.sh/elevator/elevator/webhook"
	"tangled.sh/tangled.sh/elevator/elevator/workflow"
	"tangled.sh/tangled.sh/elevator/ghclient"
	"tangled.sh/tangled.sh/elevator/log"
)

// deps are the collaborators shared by the server and the one-shot
// demote command.
type deps struct {
	cfg      *config.Config
	secrets  secrets.Provider
	store    store.Store
	auth     *ghclient.Authenticator
	client   *ghclient.Client
	notifier notify.Notifier

	closers []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func setup(ctx context.Context, cfg *config.Config) (*deps, error) {
	logger := log.FromContext(ctx)
	d := &deps{cfg: cfg}

	switch cfg.Secrets.Provider {
	case "openbao":
		ob := cfg.Secrets.OpenBao
		p, err := secrets.NewOpenBaoProvider(ob.Addr, ob.RoleID, ob.SecretID, cfg.Server.Workspace,
			log.SubLogger(logger, "openbao"),
			secrets.WithMountPath(ob.Mount),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to setup openbao secrets provider: %w", err)
		}
		d.secrets = p
		d.closers = append(d.closers, p.Stop)
		logger.Info("using openbao secrets provider", "address", ob.Addr, "mount", ob.Mount)
	case "env", "":
		d.secrets = secrets.NewEnvProvider(cfg.Secrets)
		logger.Info("using environment secrets provider")
	default:
		return nil, fmt.Errorf("unknown secrets provider: %q", cfg.Secrets.Provider)
	}

	switch cfg.Store.Provider {
	case "redis":
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := rc.Ping(ctx).Err(); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s := store.NewRedisStore(rc)
		d.store = s
		d.closers = append(d.closers, s.Stop)
		logger.Info("using redis store", "addr", cfg.Store.Redis.Addr)
	case "sqlite", "":
		s, err := store.NewSqliteStore(cfg.Server.DBPath)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to setup sqlite store: %w", err)
		}
		d.store = s
		d.closers = append(d.closers, s.Stop)
		logger.Info("using sqlite store", "path", cfg.Server.DBPath)
	default:
		d.Close()
		return nil, fmt.Errorf("unknown store provider: %q", cfg.Store.Provider)
	}

	auth, err := ghclient.NewAuthenticator(cfg.GitHub.ApiUrl)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to setup app authenticator: %w", err)
	}
	d.auth = auth
	d.client = ghclient.NewClient(cfg.GitHub.ApiUrl, log.SubLogger(logger, "github"))

	notifiers := []notify.Notifier{}
	if cfg.Posthog.ApiKey != "" {
		ph, err := posthog.NewWithConfig(cfg.Posthog.ApiKey, posthog.Config{Endpoint: cfg.Posthog.Endpoint})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to create posthog client: %w", err)
		}
		notifiers = append(notifiers, phnotify.NewPosthogNotifier(ph))
		d.closers = append(d.closers, func() { ph.Close() })
	}
	d.notifier = notify.NewMergedNotifier(notifiers, log.SubLogger(logger, "notify"))

	return d, nil
}

// authFor exchanges the app credentials for a token scoped to
// installationID, falling back to the configured installation.
func (d *deps) authFor(ctx context.Context, installationID int64) (ghclient.AuthContext, error) {
	creds, err := d.secrets.Credentials(ctx)
	if err != nil {
		return ghclient.AuthContext{}, err
	}
	if installationID == 0 {
		installationID = creds.InstallationID
	}
	return d.auth.AuthContext(ctx, ghclient.AppCredentials{
		AppID:      creds.AppID,
		PrivateKey: []byte(creds.PrivateKey),
	}, installationID)
}

// executor runs one demotion with a fresh installation token. Refusals
// are not errors; only failed calls are.
func (d *deps) executor(metrics *webhook.Metrics, logger *slog.Logger) func(ctx context.Context, dm models.Demotion) error {
	demoter := workflow.NewDemoter(d.client, d.store, d.notifier, logger)
	return func(ctx context.Context, dm models.Demotion) error {
		auth, err := d.authFor(ctx, dm.InstallationID)
		if err != nil {
			return fmt.Errorf("authenticating installation %d: %w", dm.InstallationID, err)
		}
		outcome, err := demoter.Execute(ctx, auth, dm)
		metrics.Outcome(outcome)
		logger.Info("demotion finished", "user", dm.User, "org", dm.Organization, "outcome", outcome)
		return err
	}
}

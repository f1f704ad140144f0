package secrets

import (
	"context"

	"tangled.sh/tangled.sh/elevator/elevator/config"
)

// EnvProvider serves credentials straight out of the process
// configuration. Meant for development and tests.
type EnvProvider struct {
	values map[string]string
}

func NewEnvProvider(cfg config.Secrets) *EnvProvider {
	return &EnvProvider{
		values: map[string]string{
			KeyAppID:          cfg.AppID,
			KeyPrivateKey:     cfg.PrivateKey,
			KeyInstallationID: cfg.InstallationID,
			KeyWebhookSecret:  cfg.WebhookSecret,
		},
	}
}

func (e *EnvProvider) Credentials(ctx context.Context) (Credentials, error) {
	return fromValues(func(key string) (string, bool) {
		v, ok := e.values[key]
		return v, ok
	})
}

package secrets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Credentials are everything needed to act as the GitHub App and to
// authenticate its webhook deliveries.
type Credentials struct {
	AppID          string
	PrivateKey     string // PEM encoded RSA key
	InstallationID int64
	WebhookSecret  string
}

// the names under which each credential is stored, per workspace
const (
	KeyAppID          = "app_id"
	KeyPrivateKey     = "private_key"
	KeyInstallationID = "installation_id"
	KeyWebhookSecret  = "secret_for_webhook"
)

type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// stopper interface for providers that need cleanup
type Stopper interface {
	Stop()
}

var ErrMissingCredential = errors.New("missing credential")

// ensure that we are satisfying the interface
var (
	_ = []Provider{
		&EnvProvider{},
		&OpenBaoProvider{},
	}
)

// fromValues builds Credentials out of raw key/value pairs, failing on
// the first absent key.
func fromValues(get func(key string) (string, bool)) (Credentials, error) {
	var creds Credentials
	for _, f := range []struct {
		key string
		dst *string
	}{
		{KeyAppID, &creds.AppID},
		{KeyPrivateKey, &creds.PrivateKey},
		{KeyWebhookSecret, &creds.WebhookSecret},
	} {
		v, ok := get(f.key)
		if !ok || strings.TrimSpace(v) == "" {
			return Credentials{}, fmt.Errorf("%w: %s", ErrMissingCredential, f.key)
		}
		*f.dst = v
	}

	raw, ok := get(KeyInstallationID)
	if !ok || raw == "" {
		return Credentials{}, fmt.Errorf("%w: %s", ErrMissingCredential, KeyInstallationID)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return Credentials{}, fmt.Errorf("invalid %s %q: %w", KeyInstallationID, raw, err)
	}
	creds.InstallationID = id

	return creds, nil
}

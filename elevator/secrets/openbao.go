package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	vault "github.com/openbao/openbao/api/v2"
)

// OpenBaoProvider reads the App credentials from a KV v2 mount. All
// credentials of a workspace live in a single secret at <mount>/<workspace>.
type OpenBaoProvider struct {
	client    *vault.Client
	mountPath string
	workspace string
	roleID    string
	secretID  string
	stopCh    chan struct{}
	tokenMu   sync.RWMutex
	logger    *slog.Logger
}

type OpenBaoProviderOpt func(*OpenBaoProvider)

func WithMountPath(mountPath string) OpenBaoProviderOpt {
	return func(v *OpenBaoProvider) {
		v.mountPath = mountPath
	}
}

func NewOpenBaoProvider(address, roleID, secretID, workspace string, logger *slog.Logger, opts ...OpenBaoProviderOpt) (*OpenBaoProvider, error) {
	if address == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}
	if roleID == "" {
		return nil, fmt.Errorf("role_id cannot be empty")
	}
	if secretID == "" {
		return nil, fmt.Errorf("secret_id cannot be empty")
	}
	if workspace == "" {
		return nil, fmt.Errorf("workspace cannot be empty")
	}

	config := vault.DefaultConfig()
	config.Address = address

	client, err := vault.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create openbao client: %w", err)
	}

	err = authenticateAppRole(client, roleID, secretID)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate with AppRole: %w", err)
	}

	provider := &OpenBaoProvider{
		client:    client,
		mountPath: "elevator",
		workspace: workspace,
		roleID:    roleID,
		secretID:  secretID,
		stopCh:    make(chan struct{}),
		logger:    logger,
	}

	for _, opt := range opts {
		opt(provider)
	}

	go provider.tokenRenewalLoop()

	return provider, nil
}

func authenticateAppRole(client *vault.Client, roleID, secretID string) error {
	authData := map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	}

	resp, err := client.Logical().Write("auth/approle/login", authData)
	if err != nil {
		return fmt.Errorf("failed to login with AppRole: %w", err)
	}

	if resp == nil || resp.Auth == nil {
		return fmt.Errorf("no auth info returned from AppRole login")
	}

	client.SetToken(resp.Auth.ClientToken)
	return nil
}

func (v *OpenBaoProvider) Stop() {
	close(v.stopCh)
}

func (v *OpenBaoProvider) tokenRenewalLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopCh:
			return
		case <-ticker.C:
			if err := v.ensureValidToken(); err != nil {
				v.logger.Error("openbao token renewal failed", "error", err)
			}
		}
	}
}

// ensureValidToken renews the token when its ttl drops under five
// minutes and logs in again when it is gone.
func (v *OpenBaoProvider) ensureValidToken() error {
	v.tokenMu.Lock()
	defer v.tokenMu.Unlock()

	tokenInfo, err := v.client.Auth().Token().LookupSelf()
	if err != nil {
		v.logger.Warn("token lookup failed, re-authenticating", "error", err)
		return v.reAuthenticate()
	}
	if tokenInfo == nil || tokenInfo.Data == nil {
		return v.reAuthenticate()
	}

	ttl, err := tokenInfo.TokenTTL()
	if err != nil {
		return v.reAuthenticate()
	}

	if ttl < 5*time.Minute {
		v.logger.Info("token ttl low, attempting renewal", "ttl", ttl)

		renewResp, err := v.client.Auth().Token().RenewSelf(3600)
		if err != nil || renewResp == nil || renewResp.Auth == nil {
			v.logger.Warn("token renewal failed, re-authenticating", "error", err)
			return v.reAuthenticate()
		}

		v.logger.Info("token renewed", "new_ttl_seconds", renewResp.Auth.LeaseDuration)
	}

	return nil
}

func (v *OpenBaoProvider) reAuthenticate() error {
	v.logger.Info("re-authenticating with approle")

	if err := authenticateAppRole(v.client, v.roleID, v.secretID); err != nil {
		return fmt.Errorf("re-authentication failed: %w", err)
	}
	return nil
}

func (v *OpenBaoProvider) Credentials(ctx context.Context) (Credentials, error) {
	v.tokenMu.RLock()
	defer v.tokenMu.RUnlock()

	secret, err := v.client.KVv2(v.mountPath).Get(ctx, v.workspace)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials from openbao: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("%w: nothing stored at %s/%s", ErrMissingCredential, v.mountPath, v.workspace)
	}

	return credentialsFromData(secret.Data)
}

func credentialsFromData(data map[string]interface{}) (Credentials, error) {
	return fromValues(func(key string) (string, bool) {
		raw, ok := data[key]
		if !ok {
			return "", false
		}
		switch val := raw.(type) {
		case string:
			return val, true
		case float64:
			// numeric ids come back from json as floats
			return fmt.Sprintf("%.0f", val), true
		default:
			return fmt.Sprint(val), true
		}
	})
}

package ghclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dgraph-io/ristretto"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	// GitHub caps App JWTs at ten minutes
	jwtLifetime = 10 * time.Minute
	// backdate iat to tolerate clock drift
	jwtClockSkew = 60 * time.Second
	// drop cached installation tokens this long before they expire
	tokenEarlyExpiry = time.Minute
)

// AuthContext is the bearer identity for one invocation. It is built once
// per webhook delivery or demotion run and passed explicitly to every call.
type AuthContext struct {
	InstallationID int64
	Token          string
	ExpiresAt      time.Time
}

type AppCredentials struct {
	AppID      string
	PrivateKey []byte // PEM
}

// Authenticator exchanges App JWTs for installation tokens. Tokens are
// cached per app and installation until shortly before they expire.
type Authenticator struct {
	apiUrl string
	client *http.Client
	cache  *ristretto.Cache
	now    func() time.Time
}

type AuthenticatorOpt func(*Authenticator)

func WithAuthHTTPClient(c *http.Client) AuthenticatorOpt {
	return func(a *Authenticator) {
		a.client = c
	}
}

func WithClock(now func() time.Time) AuthenticatorOpt {
	return func(a *Authenticator) {
		a.now = now
	}
}

func NewAuthenticator(apiUrl string, opts ...AuthenticatorOpt) (*Authenticator, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}

	a := &Authenticator{
		apiUrl: strings.TrimSuffix(apiUrl, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  cache,
		now:    time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// AppJWT signs a short-lived RS256 token identifying the App itself.
func (a *Authenticator) AppJWT(creds AppCredentials) (string, error) {
	key, err := jwk.ParseKey(creds.PrivateKey, jwk.WithPEM(true))
	if err != nil {
		return "", fmt.Errorf("failed to parse app private key: %w", err)
	}

	now := a.now()
	tok, err := jwt.NewBuilder().
		Issuer(creds.AppID).
		IssuedAt(now.Add(-jwtClockSkew)).
		Expiration(now.Add(jwtLifetime)).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build app jwt: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		return "", fmt.Errorf("failed to sign app jwt: %w", err)
	}
	return string(signed), nil
}

type accessTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthContext returns an installation-scoped identity, reusing a cached
// token when one is still valid.
func (a *Authenticator) AuthContext(ctx context.Context, creds AppCredentials, installationID int64) (AuthContext, error) {
	cacheKey := fmt.Sprintf("%s/%d", creds.AppID, installationID)
	if v, ok := a.cache.Get(cacheKey); ok {
		if ac, ok := v.(AuthContext); ok && a.now().Before(ac.ExpiresAt.Add(-tokenEarlyExpiry)) {
			return ac, nil
		}
	}

	appJwt, err := a.AppJWT(creds)
	if err != nil {
		return AuthContext{}, err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.apiUrl, installationID)

	var resp accessTokenResponse
	err = retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Authorization", "Bearer "+appJwt)
		req.Header.Set("Accept", acceptHeader)

		res, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.StatusCode >= 500 {
			return fmt.Errorf("token exchange: status %d", res.StatusCode)
		}
		if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusOK {
			return retry.Unrecoverable(fmt.Errorf("token exchange: status %d", res.StatusCode))
		}
		return json.NewDecoder(res.Body).Decode(&resp)
	},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return AuthContext{}, fmt.Errorf("failed to obtain installation token: %w", err)
	}
	if resp.Token == "" {
		return AuthContext{}, errors.New("failed to obtain installation token: empty token")
	}

	ac := AuthContext{
		InstallationID: installationID,
		Token:          resp.Token,
		ExpiresAt:      resp.ExpiresAt,
	}
	if ttl := resp.ExpiresAt.Sub(a.now()) - tokenEarlyExpiry; ttl > 0 {
		a.cache.SetWithTTL(cacheKey, ac, 1, ttl)
		a.cache.Wait()
	}

	return ac, nil
}

package ghclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
	return priv, pemBytes
}

func TestAppJWT(t *testing.T) {
	priv, pemBytes := testKey(t)
	now := time.Now().Truncate(time.Second)

	a, err := NewAuthenticator("https://api.example.com", WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	signed, err := a.AppJWT(AppCredentials{AppID: "4242", PrivateKey: pemBytes})
	require.NoError(t, err)

	tok, err := jwt.Parse([]byte(signed), jwt.WithKey(jwa.RS256, &priv.PublicKey), jwt.WithValidate(false))
	require.NoError(t, err)
	assert.Equal(t, "4242", tok.Issuer())
	assert.True(t, now.Add(10*time.Minute).Equal(tok.Expiration()))
	assert.True(t, now.Add(-60*time.Second).Equal(tok.IssuedAt()))
}

func TestAppJWTBadKey(t *testing.T) {
	a, err := NewAuthenticator("https://api.example.com")
	require.NoError(t, err)

	_, err = a.AppJWT(AppCredentials{AppID: "1", PrivateKey: []byte("not a key")})
	assert.Error(t, err)
}

func TestAuthContextExchangeAndCache(t *testing.T) {
	priv, pemBytes := testKey(t)
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/app/installations/77/access_tokens", r.URL.Path)

		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		_, err := jwt.Parse([]byte(bearer), jwt.WithKey(jwa.RS256, &priv.PublicKey))
		assert.NoError(t, err)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"token":      "ghs_installation",
			"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	a, err := NewAuthenticator(srv.URL)
	require.NoError(t, err)
	creds := AppCredentials{AppID: "1", PrivateKey: pemBytes}

	ac, err := a.AuthContext(context.Background(), creds, 77)
	require.NoError(t, err)
	assert.Equal(t, "ghs_installation", ac.Token)
	assert.Equal(t, int64(77), ac.InstallationID)

	ac2, err := a.AuthContext(context.Background(), creds, 77)
	require.NoError(t, err)
	assert.Equal(t, ac.Token, ac2.Token)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAuthContextRetriesServerErrors(t *testing.T) {
	_, pemBytes := testKey(t)
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"token":      "ghs_second",
			"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	a, err := NewAuthenticator(srv.URL)
	require.NoError(t, err)

	ac, err := a.AuthContext(context.Background(), AppCredentials{AppID: "1", PrivateKey: pemBytes}, 5)
	require.NoError(t, err)
	assert.Equal(t, "ghs_second", ac.Token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAuthContextDoesNotRetryClientErrors(t *testing.T) {
	_, pemBytes := testKey(t)
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a, err := NewAuthenticator(srv.URL)
	require.NoError(t, err)

	_, err = a.AuthContext(context.Background(), AppCredentials{AppID: "1", PrivateKey: pemBytes}, 5)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

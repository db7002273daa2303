package credential

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testDeviceCodeJSON = `{
	"device_code": "test-device-code",
	"user_code": "ABCD-1234",
	"verification_uri": "https://example.com/devicelogin",
	"expires_in": 900,
	"interval": 1
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noopDisplay(_ DeviceAuth) {}

// newMockOAuthServer serves /devicecode and /token, with tokenHandler
// controlling the token endpoint's response (nil uses a fixed 1-hour token).
func newMockOAuthServer(t *testing.T, tokenHandler http.HandlerFunc) oauth2.Endpoint {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /devicecode", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testDeviceCodeJSON))
	})

	if tokenHandler == nil {
		tokenHandler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "test-access-token",
				"token_type":    "Bearer",
				"refresh_token": "test-refresh-token",
				"expires_in":    3600,
			})
		}
	}

	mux.HandleFunc("POST /token", tokenHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return oauth2.Endpoint{DeviceAuthURL: srv.URL + "/devicecode", TokenURL: srv.URL + "/token"}
}

func TestDoLoginSavesTokenAndDisplaysCode(t *testing.T) {
	endpoint := newMockOAuthServer(t, nil)
	cfg := oauthConfig()
	cfg.Endpoint = endpoint

	tokenPath := filepath.Join(t.TempDir(), "tokens", "mailkeep.json")

	var displayed DeviceAuth

	gw, err := doLogin(context.Background(), tokenPath, cfg, func(da DeviceAuth) {
		displayed = da
	}, testLogger())
	require.NoError(t, err)
	require.NotNil(t, gw)

	assert.Equal(t, "ABCD-1234", displayed.UserCode)

	tok, _, loadErr := loadToken(tokenPath)
	require.NoError(t, loadErr)
	require.NotNil(t, tok)
	assert.Equal(t, "test-access-token", tok.AccessToken)

	got, tokenErr := gw.Token(context.Background())
	require.NoError(t, tokenErr)
	assert.Equal(t, "test-access-token", got)
}

func TestGatewayTokenServesCachedValueWithoutRefresh(t *testing.T) {
	calls := 0
	src := tokenSourceFunc(func() (*oauth2.Token, error) {
		calls++
		return &oauth2.Token{AccessToken: "should-not-be-used", Expiry: time.Now().Add(time.Hour)}, nil
	})

	gw := newGateway(src, "", &oauth2.Token{
		AccessToken: "cached",
		Expiry:      time.Now().Add(time.Hour),
	}, testLogger())

	got, err := gw.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", got)
	assert.Zero(t, calls, "cached token outside the refresh margin must not trigger a new acquire")
}

func TestGatewayTokenRefreshesWhenNearExpiry(t *testing.T) {
	src := tokenSourceFunc(func() (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "refreshed", Expiry: time.Now().Add(time.Hour)}, nil
	})

	gw := newGateway(src, "", &oauth2.Token{
		AccessToken: "stale",
		Expiry:      time.Now().Add(time.Minute), // inside the 5-minute refresh margin
	}, testLogger())

	got, err := gw.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed", got)
}

func TestGatewayTokenPersistsRefreshedTokenToDisk(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "mailkeep.json")
	require.NoError(t, saveToken(tokenPath, &oauth2.Token{AccessToken: "stale", Expiry: time.Now()}, nil))

	src := tokenSourceFunc(func() (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "refreshed", Expiry: time.Now().Add(time.Hour)}, nil
	})

	gw := newGateway(src, tokenPath, &oauth2.Token{
		AccessToken: "stale",
		Expiry:      time.Now(),
	}, testLogger())

	_, err := gw.Token(context.Background())
	require.NoError(t, err)

	tok, _, loadErr := loadToken(tokenPath)
	require.NoError(t, loadErr)
	assert.Equal(t, "refreshed", tok.AccessToken)
}

func TestGatewayStatusReadsCacheOnly(t *testing.T) {
	calls := 0
	src := tokenSourceFunc(func() (*oauth2.Token, error) {
		calls++
		return &oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(time.Hour)}, nil
	})

	gw := newGateway(src, "", &oauth2.Token{
		AccessToken: "cached",
		Expiry:      time.Now().Add(10 * time.Minute),
	}, testLogger())

	status := gw.Status()
	assert.Equal(t, "cached", status.Value)
	assert.Zero(t, calls)
}

func TestTokenStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "mailkeep.json")

	expiry := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	original := &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: expiry}

	require.NoError(t, saveToken(path, original, map[string]string{"mailbox": "user@example.com"}))

	tok, meta, err := loadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "user@example.com", meta["mailbox"])
}

func TestLoadTokenMissingFileIsNotAnError(t *testing.T) {
	tok, meta, err := loadToken(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.Nil(t, meta)
}

func TestLogoutRemovesTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailkeep.json")
	require.NoError(t, saveToken(path, &oauth2.Token{AccessToken: "a"}, nil))

	require.NoError(t, Logout(path, testLogger()))

	tok, _, err := loadToken(path)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestLogoutWhenAlreadyLoggedOutIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	assert.NoError(t, Logout(path, testLogger()))
}

func TestAcquireWithThrottleRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	src := tokenSourceFunc(func() (*oauth2.Token, error) {
		attempts++
		if attempts < 2 {
			return nil, &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
		}

		return &oauth2.Token{AccessToken: "ok"}, nil
	})

	// The steppedBackoff sleeps for real durations; swap in a single
	// one-millisecond step so the test doesn't wait 10 real seconds for the first retry.
	orig := throttleBackoffSteps
	throttleBackoffSteps = []time.Duration{time.Millisecond}
	defer func() { throttleBackoffSteps = orig }()

	tok, err := acquireWithThrottleRetry(context.Background(), src, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "ok", tok.AccessToken)
	assert.Equal(t, 2, attempts)
}

func TestAcquireWithThrottleRetryPassesThroughNonThrottleErrors(t *testing.T) {
	src := tokenSourceFunc(func() (*oauth2.Token, error) {
		return nil, &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}}
	})

	_, err := acquireWithThrottleRetry(context.Background(), src, testLogger())
	require.Error(t, err)
}

func TestSteppedBackoffExhaustsThenStops(t *testing.T) {
	b := newSteppedBackoff(10*time.Second, 20*time.Second)

	d, stop := b.Next()
	assert.Equal(t, 10*time.Second, d)
	assert.False(t, stop)

	d, stop = b.Next()
	assert.Equal(t, 20*time.Second, d)
	assert.False(t, stop)

	_, stop = b.Next()
	assert.True(t, stop)
}

// tokenSourceFunc adapts a plain function to oauth2.TokenSource for tests.
type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) {
	return f()
}

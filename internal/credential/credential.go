// Package credential implements the Credential Gateway: a cached bearer-token
// supplier sitting in front of the mail provider's OAuth2 device-code flow.
// It exposes one operation to the rest of mailkeep — the current access
// token — and keeps token acquisition off the hot path of a sync run.
package credential

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

// refreshBefore is the proactive-refresh threshold: a cached token within
// this margin of expiry is treated as already expired.
const refreshBefore = 5 * time.Minute

// ErrNotLoggedIn is returned by LoadGateway when no token file exists yet.
var ErrNotLoggedIn = errors.New("credential: not logged in, run \"mailkeep auth login\"")

// AccessToken is the cached bearer token shared across all provider calls.
type AccessToken struct {
	Value     string
	ExpiresOn time.Time
}

// Gateway serves access tokens to the mail provider client. It satisfies
// mailgraph.TokenSource's Token(ctx) (string, error) shape without importing
// that package — the two are wired together only at the CLI's composition
// root.
type Gateway struct {
	mu        sync.Mutex
	src       oauth2.TokenSource
	tokenPath string
	logger    *slog.Logger
	cached    AccessToken
	lastSaved string
}

func newGateway(src oauth2.TokenSource, tokenPath string, tok *oauth2.Token, logger *slog.Logger) *Gateway {
	return &Gateway{
		src:       src,
		tokenPath: tokenPath,
		logger:    logger,
		cached:    AccessToken{Value: tok.AccessToken, ExpiresOn: tok.Expiry},
		lastSaved: tok.AccessToken,
	}
}

// Token returns the current access token, refreshing it first if the cached
// one expires within refreshBefore. At most one silent acquire is in flight
// at a time; concurrent callers block on the gateway's mutex rather than
// each triggering their own token request.
func (g *Gateway) Token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached.Value != "" && time.Until(g.cached.ExpiresOn) > refreshBefore {
		return g.cached.Value, nil
	}

	tok, err := acquireWithThrottleRetry(ctx, g.src, g.logger)
	if err != nil {
		return "", archiveerr.New(archiveerr.KindAuth, "acquiring access token", err)
	}

	g.cached = AccessToken{Value: tok.AccessToken, ExpiresOn: tok.Expiry}
	g.persistIfChanged(tok)

	return g.cached.Value, nil
}

// persistIfChanged writes the refreshed token to disk when the oauth2
// library handed back a different access token than the one last saved.
// The teacher's equivalent uses a forked golang.org/x/oauth2 with an
// OnTokenChange callback for this; mailkeep stays on stock oauth2 and
// detects the change explicitly instead, to avoid depending on an
// unreleased fork.
func (g *Gateway) persistIfChanged(tok *oauth2.Token) {
	if tok.AccessToken == g.lastSaved || g.tokenPath == "" {
		return
	}

	if err := saveToken(g.tokenPath, tok, nil); err != nil {
		g.logger.Warn("persisting refreshed token failed",
			slog.String("path", g.tokenPath),
			slog.String("error", err.Error()),
		)

		return
	}

	g.lastSaved = tok.AccessToken
}

// Status reports the cached token without touching the network. Safe to
// call even when the cache is stale or empty — callers needing a live token
// must use Token instead.
func (g *Gateway) Status() AccessToken {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.cached
}

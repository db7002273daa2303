package credential

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

// defaultClientID is the public client registered for mailkeep's own
// device-code flow against the mail provider's identity platform.
const defaultClientID = "a1f0c6d2-4e91-4b7a-9c3f-6fb1de9a2b8c"

var defaultScopes = []string{
	"offline_access",
	"Mail.Read",
	"User.Read",
}

// DeviceAuth holds the fields the CLI shows the user during device-code
// login: the short code to type and the URL to visit.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// Login runs the device-code OAuth2 flow: requests a device code, invokes
// display so the CLI can show the user code and verification URL, blocks
// until the user authorizes (or ctx is canceled), then persists the token
// to tokenPath and returns a Gateway ready to serve access tokens.
func Login(ctx context.Context, tokenPath string, display func(DeviceAuth), logger *slog.Logger) (*Gateway, error) {
	return doLogin(ctx, tokenPath, oauthConfig(), display, logger)
}

// doLogin implements the device-code flow against a caller-supplied config,
// so tests can point it at a mock OAuth2 endpoint instead of the real one.
func doLogin(
	ctx context.Context,
	tokenPath string,
	cfg *oauth2.Config,
	display func(DeviceAuth),
	logger *slog.Logger,
) (*Gateway, error) {
	logger.Info("starting device code auth flow", slog.String("path", tokenPath))

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindAuth, "requesting device code", err)
	}

	display(DeviceAuth{UserCode: da.UserCode, VerificationURI: da.VerificationURI})

	logger.Info("device code received, waiting for user authorization")

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindAuth, "waiting for device authorization", err)
	}

	if err := saveToken(tokenPath, tok, nil); err != nil {
		return nil, archiveerr.New(archiveerr.KindFilesystem, "saving token", err)
	}

	logger.Info("login successful", slog.String("path", tokenPath), slog.Time("expiry", tok.Expiry))

	src := cfg.TokenSource(ctx, tok)

	return newGateway(src, tokenPath, tok, logger), nil
}

// LoadGateway loads a previously saved token from tokenPath and wraps it in
// a Gateway with auto-refresh. Returns ErrNotLoggedIn if no token has ever
// been saved there.
func LoadGateway(ctx context.Context, tokenPath string, logger *slog.Logger) (*Gateway, error) {
	tok, _, err := loadToken(tokenPath)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindAuth, "loading saved token", err)
	}

	if tok == nil {
		return nil, archiveerr.New(archiveerr.KindAuth, "", ErrNotLoggedIn)
	}

	cfg := oauthConfig()
	src := cfg.TokenSource(ctx, tok)

	logger.Info("loaded saved token", slog.String("path", tokenPath), slog.Time("expiry", tok.Expiry))

	return newGateway(src, tokenPath, tok, logger), nil
}

// Logout removes the saved token file. Logging out when already logged out
// is not an error.
func Logout(tokenPath string, logger *slog.Logger) error {
	if err := removeToken(tokenPath); err != nil {
		return fmt.Errorf("credential: removing token file: %w", err)
	}

	logger.Info("logged out", slog.String("path", tokenPath))

	return nil
}

func oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: defaultClientID,
		Scopes:   defaultScopes,
		Endpoint: microsoft.AzureADEndpoint("common"),
	}
}

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/chi-demo/app"

	"github.com/tendant/simple-oauth/pkg/account"
	"github.com/tendant/simple-oauth/pkg/config"
	"github.com/tendant/simple-oauth/pkg/identity"
	"github.com/tendant/simple-oauth/pkg/oauth2"
	"github.com/tendant/simple-oauth/pkg/oauth2client"
	"github.com/tendant/simple-oauth/pkg/session"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Config{}
	cleanenv.ReadEnv(&cfg)

	clientRepo, err := oauth2client.NewEnvOAuth2ClientRepository()
	if err != nil {
		slog.Error("Failed loading OAuth2 clients", "err", err)
		os.Exit(-1)
	}
	clientService := oauth2client.NewClientService(clientRepo)

	identityClient := identity.NewHTTPClient(cfg.Identity.BaseURL,
		identity.WithTimeout(cfg.Identity.Timeout),
	)

	sessions := session.NewManager(cfg.Session.CookieSecret,
		session.WithDuration(cfg.Session.Duration),
	)

	codeStore := oauth2.NewInMemoryAuthCodeStore(
		oauth2.WithCodeTTL(cfg.OAuth2.CodeTTL),
	)
	tokenStore := oauth2.NewInMemoryAccessTokenStore(
		oauth2.WithTokenTTL(cfg.OAuth2.TokenTTL),
	)

	oauth2Service := oauth2.NewService(clientService, codeStore, tokenStore, identityClient,
		oauth2.WithDefaultRedirectURI(cfg.OAuth2.DefaultRedirectURI),
		oauth2.WithRequiredScope(cfg.OAuth2.UserInfoScope),
	)

	policy := account.PasswordPolicy{
		MinLength:        cfg.Password.RequiredLength,
		RequireDigit:     cfg.Password.RequiredDigit,
		RequireLowercase: cfg.Password.RequiredLowercase,
		RequireUppercase: cfg.Password.RequiredUppercase,
	}

	oauth2Handle := oauth2.NewHandle(oauth2Service, sessions)
	accountHandle := account.NewHandle(identityClient, sessions, policy)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	oauth2Handle.RegisterRoutes(server.R)
	accountHandle.RegisterRoutes(server.R)

	go sweepExpired(context.Background(), codeStore, tokenStore, cfg.OAuth2.SweepInterval)

	slog.Info("Starting OAuth2 server", "identity_api", cfg.Identity.BaseURL)
	server.Run()
}

// sweepExpired periodically drops expired codes and tokens. Consume and
// Validate check expiry themselves; this only bounds memory.
func sweepExpired(ctx context.Context, codes *oauth2.InMemoryAuthCodeStore, tokens *oauth2.InMemoryAccessTokenStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			deletedCodes, _ := codes.DeleteExpired(ctx, now.UTC())
			deletedTokens, _ := tokens.DeleteExpired(ctx, now.UTC())
			if deletedCodes > 0 || deletedTokens > 0 {
				slog.Info("Deleted expired oauth artifacts", "codes", deletedCodes, "tokens", deletedTokens)
			}
		}
	}
}

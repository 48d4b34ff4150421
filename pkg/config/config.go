// Package config collects the environment-driven configuration for the
// OAuth2 front end. Values are read once in main with cleanenv and passed
// down by value.
package config

import (
	"time"

	"github.com/tendant/chi-demo/app"
)

type SessionConfig struct {
	CookieSecret string        `env:"COOKIE_SECRET" env-default:"change-me-in-production"`
	Duration     time.Duration `env:"SESSION_DURATION" env-default:"336h"`
}

type OAuth2Config struct {
	CodeTTL            time.Duration `env:"AUTH_CODE_TTL" env-default:"10m"`
	TokenTTL           time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"1h"`
	UserInfoScope      string        `env:"USER_INFO_SCOPE" env-default:"user"`
	DefaultRedirectURI string        `env:"DEFAULT_REDIRECT_URI" env-default:"https://webmaker.org"`
	SweepInterval      time.Duration `env:"EXPIRY_SWEEP_INTERVAL" env-default:"1m"`
}

type IdentityConfig struct {
	BaseURL string        `env:"IDENTITY_API_URL" env-default:"http://localhost:3232"`
	Timeout time.Duration `env:"IDENTITY_API_TIMEOUT" env-default:"10s"`
}

type PasswordComplexityConfig struct {
	RequiredDigit     bool `env:"PASSWORD_COMPLEXITY_REQUIRE_DIGIT" env-default:"true"`
	RequiredLowercase bool `env:"PASSWORD_COMPLEXITY_REQUIRE_LOWERCASE" env-default:"true"`
	RequiredUppercase bool `env:"PASSWORD_COMPLEXITY_REQUIRE_UPPERCASE" env-default:"true"`
	RequiredLength    int  `env:"PASSWORD_COMPLEXITY_REQUIRED_LENGTH" env-default:"8"`
}

type Config struct {
	AppConfig app.AppConfig
	Session   SessionConfig
	OAuth2    OAuth2Config
	Identity  IdentityConfig
	Password  PasswordComplexityConfig
}

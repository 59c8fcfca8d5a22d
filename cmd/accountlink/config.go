package main

import "time"

// Config holds server configuration loaded from environment variables
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	RedisURL    string `envconfig:"REDIS_URL" required:"true"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// EncryptionKey is the hex-encoded 32-byte key protecting persisted
	// token material.
	EncryptionKey string `envconfig:"ENCRYPTION_KEY" required:"true"`

	SessionSigningKey string        `envconfig:"SESSION_SIGNING_KEY" required:"true"`
	SessionIssuer     string        `envconfig:"SESSION_ISSUER" default:"accountlink"`
	SessionTTL        time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	// DeviceAuthEnabled gates account linking; when false, initiate fails
	// closed.
	DeviceAuthEnabled bool `envconfig:"DEVICE_AUTH_ENABLED" default:"true"`

	CallbackTimeout   time.Duration `envconfig:"CALLBACK_TIMEOUT" default:"10s"`
	PollWait          time.Duration `envconfig:"POLL_WAIT" default:"100ms"`
	CompletionTTL     time.Duration `envconfig:"COMPLETION_TTL" default:"5m"`
	SweepInterval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	PollRateWindow    time.Duration `envconfig:"POLL_RATE_WINDOW" default:"1m"`
	MaxPollsPerWindow int           `envconfig:"MAX_POLLS_PER_WINDOW" default:"30"`

	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`

	// DevMode swaps the identity provider for a local one that approves
	// flows through the dev endpoints. Never enable in production.
	DevMode            bool   `envconfig:"DEV_MODE" default:"false"`
	DevVerificationURI string `envconfig:"DEV_VERIFICATION_URI" default:"http://localhost:8080/device"`

	Provider ProviderConfig `envconfig:"PROVIDER"`
}

// ProviderConfig configures the upstream identity provider.
type ProviderConfig struct {
	Name          string   `envconfig:"NAME" default:"microsoft"`
	ClientID      string   `envconfig:"CLIENT_ID"`
	ClientSecret  string   `envconfig:"CLIENT_SECRET"`
	AuthURL       string   `envconfig:"AUTH_URL"`
	DeviceAuthURL string   `envconfig:"DEVICE_AUTH_URL"`
	TokenURL      string   `envconfig:"TOKEN_URL"`
	Scopes        []string `envconfig:"SCOPES"`
}

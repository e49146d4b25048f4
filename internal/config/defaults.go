package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8090
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 10 * 1024 * 1024 // 10MB

	// Database defaults.
	DefaultDBPath       = "formwright.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Auth defaults.
	DefaultAccessTTL         = 15 * time.Minute
	DefaultRefreshTTL        = 7 * 24 * time.Hour // 7 days
	DefaultJWTIssuer         = "formwright"
	DefaultMinPassword       = 8
	DefaultFailedAttemptMax  = 5
	DefaultLockoutDuration   = 24 * time.Hour
	DefaultPasswordExpiresIn = 90 * 24 * time.Hour
	DefaultOTPLength         = 6
	DefaultOTPTTL            = 5 * time.Minute
	DefaultOTPResendLimit    = 5

	// Webhook dispatch defaults.
	DefaultWebhookMaxAttempts    = 5
	DefaultWebhookPollInterval   = 5 * time.Second
	DefaultWebhookRequestTimeout = 10 * time.Second
	DefaultWebhookWorkers        = 4
	DefaultDLQRetention          = 30 * 24 * time.Hour

	// File upload defaults.
	DefaultMaxFileUploadBytes = 10 * 1024 * 1024 // 10MB, per spec §4.4
	DefaultStorageSweepEvery  = 10 * time.Minute
	DefaultOrphanAge          = time.Hour

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	// Realtime defaults.
	DefaultRealtimePollInterval = 500 * time.Millisecond
	DefaultMaxConnections       = 500
	DefaultChangeBufferSize     = 256
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
			CORS: CORSConfig{
				Enabled:          true,
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
				ExposedHeaders:   []string{"X-Request-ID"},
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			},
		},
		Database: DatabaseConfig{
			Path:            DefaultDBPath,
			WALMode:         true,
			CacheSize:       DefaultCacheSize,
			BusyTimeout:     DefaultBusyTimeout,
			ForeignKeys:     true,
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: 0,
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				AccessTTL:  DefaultAccessTTL,
				RefreshTTL: DefaultRefreshTTL,
				Issuer:     DefaultJWTIssuer,
			},
			Password: PasswordConfig{
				MinLength:        DefaultMinPassword,
				RequireUppercase: false,
				RequireLowercase: false,
				RequireNumber:    false,
				RequireSpecial:   false,
			},
			OTP: OTPConfig{
				Length:      DefaultOTPLength,
				TTL:         DefaultOTPTTL,
				ResendLimit: DefaultOTPResendLimit,
			},
			AllowRegistration:  true,
			FailedAttemptLimit: DefaultFailedAttemptMax,
			LockoutDuration:    DefaultLockoutDuration,
			PasswordExpiration: DefaultPasswordExpiresIn,
			RateLimit: AuthRateLimitConfig{
				Login:    RateLimitRule{Max: 10, Window: time.Minute},
				Register: RateLimitRule{Max: 5, Window: time.Minute},
			},
		},
		Forms: FormsConfig{
			DefaultLanguage:    "en",
			MaxFileUploadBytes: DefaultMaxFileUploadBytes,
		},
		Webhooks: WebhooksConfig{
			MaxAttempts: DefaultWebhookMaxAttempts,
			BackoffSteps: []time.Duration{
				0,
				30 * time.Second,
				2 * time.Minute,
				10 * time.Minute,
				1 * time.Hour,
			},
			PollInterval:   DefaultWebhookPollInterval,
			RequestTimeout: DefaultWebhookRequestTimeout,
			Workers:        DefaultWebhookWorkers,
			DLQRetention:   DefaultDLQRetention,
		},
		Email: EmailConfig{
			FromAddress: "no-reply@formwright.local",
			FromName:    "Formwright",
			BaseURL:     "http://localhost:8090",
		},
		SMS: SMSConfig{
			Provider: "noop",
		},
		Storage: StorageConfig{
			Backend:       "filesystem",
			LocalPath:     "uploads",
			SweepInterval: DefaultStorageSweepEvery,
			OrphanAge:     DefaultOrphanAge,
		},
		Realtime: RealtimeConfig{
			Enabled:          true,
			PollInterval:     DefaultRealtimePollInterval,
			MaxConnections:   DefaultMaxConnections,
			ChangeBufferSize: DefaultChangeBufferSize,
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			Format:    DefaultLogFormat,
			Caller:    false,
			Timestamp: true,
		},
		Dev: DevConfig{
			Enabled:     false,
			WatchConfig: true,
		},
	}
}

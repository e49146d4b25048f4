// Package config provides configuration management for Formwright.
package config

import (
	"time"
)

// Config is the root configuration structure for Formwright.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Forms    FormsConfig    `mapstructure:"forms"`
	Webhooks WebhooksConfig `mapstructure:"webhooks"`
	Email    EmailConfig    `mapstructure:"email"`
	SMS      SMSConfig      `mapstructure:"sms"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Dev      DevConfig      `mapstructure:"dev"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	CORS CORSConfig `mapstructure:"cors"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// MaxBodySize bounds submission payload size (bytes), separate from
	// the per-file upload limit in StorageConfig.
	MaxBodySize int64 `mapstructure:"max_body_size"`

	TLS *TLSConfig `mapstructure:"tls"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	ExposedHeaders   []string      `mapstructure:"exposed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// TLSConfig holds TLS settings.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	AutoTLS  bool   `mapstructure:"auto_tls"`
	Domain   string `mapstructure:"domain"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	WALMode         bool          `mapstructure:"wal_mode"`
	CacheSize       int           `mapstructure:"cache_size"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	ForeignKeys     bool          `mapstructure:"foreign_keys"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	JWT      JWTConfig      `mapstructure:"jwt"`
	Password PasswordConfig `mapstructure:"password"`
	OTP      OTPConfig      `mapstructure:"otp"`

	// AllowRegistration permits self-service Register calls. The first
	// registered user always becomes superadmin regardless of this flag.
	AllowRegistration bool `mapstructure:"allow_registration"`

	// FailedAttemptLimit is the number of consecutive failed password/OTP
	// logins before the account is locked (spec default 5).
	FailedAttemptLimit int `mapstructure:"failed_attempt_limit"`

	// LockoutDuration is how long an account stays locked after hitting
	// FailedAttemptLimit (spec default 24h).
	LockoutDuration time.Duration `mapstructure:"lockout_duration"`

	// PasswordExpiration is how long a password remains valid after it is
	// set (spec default 90 days).
	PasswordExpiration time.Duration `mapstructure:"password_expiration"`

	RateLimit AuthRateLimitConfig `mapstructure:"rate_limit"`
}

// AuthRateLimitConfig bounds login/register attempts per client IP.
type AuthRateLimitConfig struct {
	Login    RateLimitRule `mapstructure:"login"`
	Register RateLimitRule `mapstructure:"register"`
}

// RateLimitRule caps a client to Max requests per Window.
type RateLimitRule struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// JWTConfig holds JWT settings.
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	Issuer     string        `mapstructure:"issuer"`
	Audience   []string      `mapstructure:"audience"`
}

// PasswordConfig holds password requirements.
type PasswordConfig struct {
	MinLength        int  `mapstructure:"min_length"`
	RequireUppercase bool `mapstructure:"require_uppercase"`
	RequireLowercase bool `mapstructure:"require_lowercase"`
	RequireNumber    bool `mapstructure:"require_number"`
	RequireSpecial   bool `mapstructure:"require_special"`
}

// OTPConfig holds mobile OTP login settings.
type OTPConfig struct {
	Length      int           `mapstructure:"length"`
	TTL         time.Duration `mapstructure:"ttl"`
	ResendLimit int           `mapstructure:"resend_limit"`
}

// FormsConfig holds schema-engine wide limits.
type FormsConfig struct {
	DefaultLanguage    string `mapstructure:"default_language"`
	MaxFileUploadBytes int64  `mapstructure:"max_file_upload_bytes"`
}

// WebhooksConfig holds outbound webhook dispatch settings.
type WebhooksConfig struct {
	MaxAttempts    int             `mapstructure:"max_attempts"`
	BackoffSteps   []time.Duration `mapstructure:"backoff_steps"`
	PollInterval   time.Duration   `mapstructure:"poll_interval"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	Workers        int             `mapstructure:"workers"`
	DLQRetention   time.Duration   `mapstructure:"dlq_retention"`
}

// EmailConfig holds outbound notification email settings.
type EmailConfig struct {
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	BaseURL     string `mapstructure:"base_url"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
}

// SMSConfig holds OTP SMS gateway settings.
type SMSConfig struct {
	Provider string `mapstructure:"provider"`
}

// StorageConfig holds file upload storage settings.
type StorageConfig struct {
	Backend       string        `mapstructure:"backend"` // "filesystem" or "s3"
	LocalPath     string        `mapstructure:"local_path"`
	S3Bucket      string        `mapstructure:"s3_bucket"`
	S3Region      string        `mapstructure:"s3_region"`
	S3Endpoint    string        `mapstructure:"s3_endpoint"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	OrphanAge     time.Duration `mapstructure:"orphan_age"`
	// Compression is applied to uploaded file bytes at rest: "", "gzip" or "zstd".
	Compression string `mapstructure:"compression"`
}

// RealtimeConfig holds the admin live submission feed settings.
type RealtimeConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxConnections   int           `mapstructure:"max_connections"`
	ChangeBufferSize int           `mapstructure:"change_buffer_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Caller    bool   `mapstructure:"caller"`
	Timestamp bool   `mapstructure:"timestamp"`
	Output    string `mapstructure:"output"`
}

// DevConfig holds development mode settings.
type DevConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	WatchConfig bool   `mapstructure:"watch_config"`
	FormsDir    string `mapstructure:"forms_dir"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return s.Host + ":" + itoa(s.Port)
}

// itoa converts int to string without importing strconv.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	negative := i < 0
	if negative {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if negative {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}

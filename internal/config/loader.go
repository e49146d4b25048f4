package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingRequired = errors.New("missing required configuration")
)

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config
}

func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "FORMWRIGHT"
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("formwright")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/formwright")
		v.AddConfigPath("/etc/formwright")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	expandEnvInConfig(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func LoadWithDefaults() (*Config, error) {
	return Load(LoadOptions{})
}

func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", cfg.Server.MaxBodySize)

	v.SetDefault("server.cors.enabled", cfg.Server.CORS.Enabled)
	v.SetDefault("server.cors.allowed_origins", cfg.Server.CORS.AllowedOrigins)
	v.SetDefault("server.cors.allowed_methods", cfg.Server.CORS.AllowedMethods)
	v.SetDefault("server.cors.allowed_headers", cfg.Server.CORS.AllowedHeaders)
	v.SetDefault("server.cors.exposed_headers", cfg.Server.CORS.ExposedHeaders)
	v.SetDefault("server.cors.allow_credentials", cfg.Server.CORS.AllowCredentials)
	v.SetDefault("server.cors.max_age", cfg.Server.CORS.MaxAge)

	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.wal_mode", cfg.Database.WALMode)
	v.SetDefault("database.cache_size", cfg.Database.CacheSize)
	v.SetDefault("database.busy_timeout", cfg.Database.BusyTimeout)
	v.SetDefault("database.foreign_keys", cfg.Database.ForeignKeys)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)

	v.SetDefault("auth.jwt.access_ttl", cfg.Auth.JWT.AccessTTL)
	v.SetDefault("auth.jwt.refresh_ttl", cfg.Auth.JWT.RefreshTTL)
	v.SetDefault("auth.jwt.issuer", cfg.Auth.JWT.Issuer)
	v.SetDefault("auth.password.min_length", cfg.Auth.Password.MinLength)
	v.SetDefault("auth.password.require_uppercase", cfg.Auth.Password.RequireUppercase)
	v.SetDefault("auth.password.require_lowercase", cfg.Auth.Password.RequireLowercase)
	v.SetDefault("auth.password.require_number", cfg.Auth.Password.RequireNumber)
	v.SetDefault("auth.password.require_special", cfg.Auth.Password.RequireSpecial)
	v.SetDefault("auth.otp.length", cfg.Auth.OTP.Length)
	v.SetDefault("auth.otp.ttl", cfg.Auth.OTP.TTL)
	v.SetDefault("auth.otp.resend_limit", cfg.Auth.OTP.ResendLimit)
	v.SetDefault("auth.allow_registration", cfg.Auth.AllowRegistration)
	v.SetDefault("auth.failed_attempt_limit", cfg.Auth.FailedAttemptLimit)
	v.SetDefault("auth.lockout_duration", cfg.Auth.LockoutDuration)
	v.SetDefault("auth.password_expiration", cfg.Auth.PasswordExpiration)
	v.SetDefault("auth.rate_limit.login.max", cfg.Auth.RateLimit.Login.Max)
	v.SetDefault("auth.rate_limit.login.window", cfg.Auth.RateLimit.Login.Window)
	v.SetDefault("auth.rate_limit.register.max", cfg.Auth.RateLimit.Register.Max)
	v.SetDefault("auth.rate_limit.register.window", cfg.Auth.RateLimit.Register.Window)

	v.SetDefault("forms.default_language", cfg.Forms.DefaultLanguage)
	v.SetDefault("forms.max_file_upload_bytes", cfg.Forms.MaxFileUploadBytes)

	v.SetDefault("webhooks.max_attempts", cfg.Webhooks.MaxAttempts)
	v.SetDefault("webhooks.backoff_steps", cfg.Webhooks.BackoffSteps)
	v.SetDefault("webhooks.poll_interval", cfg.Webhooks.PollInterval)
	v.SetDefault("webhooks.request_timeout", cfg.Webhooks.RequestTimeout)
	v.SetDefault("webhooks.workers", cfg.Webhooks.Workers)
	v.SetDefault("webhooks.dlq_retention", cfg.Webhooks.DLQRetention)

	v.SetDefault("email.from_address", cfg.Email.FromAddress)
	v.SetDefault("email.from_name", cfg.Email.FromName)
	v.SetDefault("email.base_url", cfg.Email.BaseURL)
	v.SetDefault("email.smtp_host", cfg.Email.SMTPHost)
	v.SetDefault("email.smtp_port", cfg.Email.SMTPPort)
	v.SetDefault("email.smtp_username", cfg.Email.SMTPUsername)
	v.SetDefault("email.smtp_password", cfg.Email.SMTPPassword)

	v.SetDefault("sms.provider", cfg.SMS.Provider)

	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.local_path", cfg.Storage.LocalPath)
	v.SetDefault("storage.s3_bucket", cfg.Storage.S3Bucket)
	v.SetDefault("storage.s3_region", cfg.Storage.S3Region)
	v.SetDefault("storage.s3_endpoint", cfg.Storage.S3Endpoint)
	v.SetDefault("storage.sweep_interval", cfg.Storage.SweepInterval)
	v.SetDefault("storage.orphan_age", cfg.Storage.OrphanAge)
	v.SetDefault("storage.compression", cfg.Storage.Compression)

	v.SetDefault("realtime.enabled", cfg.Realtime.Enabled)
	v.SetDefault("realtime.poll_interval", cfg.Realtime.PollInterval)
	v.SetDefault("realtime.max_connections", cfg.Realtime.MaxConnections)
	v.SetDefault("realtime.change_buffer_size", cfg.Realtime.ChangeBufferSize)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.caller", cfg.Logging.Caller)
	v.SetDefault("logging.timestamp", cfg.Logging.Timestamp)

	v.SetDefault("dev.enabled", cfg.Dev.Enabled)
	v.SetDefault("dev.watch_config", cfg.Dev.WatchConfig)
	v.SetDefault("dev.forms_dir", cfg.Dev.FormsDir)
}

func expandEnvInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envVar := val[2 : len(val)-1]
			if envVal := os.Getenv(envVar); envVal != "" {
				v.Set(key, envVal)
			}
		}
	}
}

func ConfigFilePath(customPath string) (string, error) {
	if customPath != "" {
		absPath, err := filepath.Abs(customPath)
		if err != nil {
			return "", fmt.Errorf("resolving config path: %w", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", absPath)
		}
		return absPath, nil
	}

	searchPaths := []string{
		"formwright.yaml",
		"formwright.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "formwright", "formwright.yaml"),
		"/etc/formwright/formwright.yaml",
	}

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", ErrConfigNotFound
}

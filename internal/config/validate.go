package config

import (
	"fmt"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateForms(&cfg.Forms)...)
	errs = append(errs, validateWebhooks(&cfg.Webhooks)...)
	errs = append(errs, validateEmail(&cfg.Email)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateRealtime(&cfg.Realtime)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.write_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxBodySize < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be non-negative",
		})
	}

	if cfg.CORS.Enabled && cfg.CORS.AllowCredentials {
		for _, origin := range cfg.CORS.AllowedOrigins {
			if origin == "*" {
				errs = append(errs, ValidationError{
					Field:   "server.cors",
					Message: "security: allow_credentials=true with allowed_origins=[\"*\"] is insecure",
				})
				break
			}
		}
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		if !cfg.TLS.AutoTLS {
			if cfg.TLS.CertFile == "" {
				errs = append(errs, ValidationError{
					Field:   "server.tls.cert_file",
					Message: "required when TLS is enabled without auto_tls",
				})
			}
			if cfg.TLS.KeyFile == "" {
				errs = append(errs, ValidationError{
					Field:   "server.tls.key_file",
					Message: "required when TLS is enabled without auto_tls",
				})
			}
		} else if cfg.TLS.Domain == "" {
			errs = append(errs, ValidationError{
				Field:   "server.tls.domain",
				Message: "required when auto_tls is enabled",
			})
		}
	}

	return errs
}

func validateDatabase(cfg *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "database.path",
			Message: "required",
		})
	}

	if cfg.MaxOpenConns < 1 {
		errs = append(errs, ValidationError{
			Field:   "database.max_open_conns",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateAuth(cfg *AuthConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.JWT.AccessTTL < time.Second {
		errs = append(errs, ValidationError{
			Field:   "auth.jwt.access_ttl",
			Message: "must be at least 1 second",
		})
	}

	if cfg.JWT.RefreshTTL < cfg.JWT.AccessTTL {
		errs = append(errs, ValidationError{
			Field:   "auth.jwt.refresh_ttl",
			Message: "must be greater than or equal to access_ttl",
		})
	}

	if cfg.Password.MinLength < 8 {
		errs = append(errs, ValidationError{
			Field:   "auth.password.min_length",
			Message: "must be at least 8 for security",
		})
	}

	if cfg.OTP.Length < 4 || cfg.OTP.Length > 10 {
		errs = append(errs, ValidationError{
			Field:   "auth.otp.length",
			Message: "must be between 4 and 10 digits",
		})
	}

	if cfg.OTP.TTL < time.Minute {
		errs = append(errs, ValidationError{
			Field:   "auth.otp.ttl",
			Message: "must be at least 1 minute",
		})
	}

	if cfg.OTP.ResendLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "auth.otp.resend_limit",
			Message: "must be at least 1",
		})
	}

	if cfg.FailedAttemptLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "auth.failed_attempt_limit",
			Message: "must be at least 1",
		})
	}

	if cfg.LockoutDuration < time.Minute {
		errs = append(errs, ValidationError{
			Field:   "auth.lockout_duration",
			Message: "must be at least 1 minute",
		})
	}

	return errs
}

func validateForms(cfg *FormsConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.DefaultLanguage == "" {
		errs = append(errs, ValidationError{
			Field:   "forms.default_language",
			Message: "required",
		})
	}

	if cfg.MaxFileUploadBytes < 1 {
		errs = append(errs, ValidationError{
			Field:   "forms.max_file_upload_bytes",
			Message: "must be positive",
		})
	}

	return errs
}

func validateWebhooks(cfg *WebhooksConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.MaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "webhooks.max_attempts",
			Message: "must be at least 1",
		})
	}

	if len(cfg.BackoffSteps) != cfg.MaxAttempts {
		errs = append(errs, ValidationError{
			Field:   "webhooks.backoff_steps",
			Message: "must have exactly max_attempts entries",
		})
	}

	if cfg.PollInterval < 100*time.Millisecond {
		errs = append(errs, ValidationError{
			Field:   "webhooks.poll_interval",
			Message: "must be at least 100ms",
		})
	}

	if cfg.RequestTimeout < time.Second {
		errs = append(errs, ValidationError{
			Field:   "webhooks.request_timeout",
			Message: "must be at least 1 second",
		})
	}

	if cfg.Workers < 1 {
		errs = append(errs, ValidationError{
			Field:   "webhooks.workers",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateEmail(cfg *EmailConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.FromAddress == "" {
		errs = append(errs, ValidationError{
			Field:   "email.from_address",
			Message: "required",
		})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	validBackends := map[string]bool{"filesystem": true, "s3": true}
	if !validBackends[cfg.Backend] {
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: "must be 'filesystem' or 's3'",
		})
	}

	if cfg.Backend == "filesystem" && cfg.LocalPath == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.local_path",
			Message: "required when backend is 'filesystem'",
		})
	}

	if cfg.Backend == "s3" && cfg.S3Bucket == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.s3_bucket",
			Message: "required when backend is 's3'",
		})
	}

	if cfg.SweepInterval < time.Minute {
		errs = append(errs, ValidationError{
			Field:   "storage.sweep_interval",
			Message: "must be at least 1 minute",
		})
	}

	return errs
}

func validateRealtime(cfg *RealtimeConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return errs
	}

	if cfg.PollInterval < 10*time.Millisecond {
		errs = append(errs, ValidationError{
			Field:   "realtime.poll_interval",
			Message: "must be at least 10ms to prevent high CPU usage",
		})
	}

	if cfg.MaxConnections < 1 {
		errs = append(errs, ValidationError{
			Field:   "realtime.max_connections",
			Message: "must be at least 1",
		})
	}

	if cfg.ChangeBufferSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "realtime.change_buffer_size",
			Message: "must be at least 1",
		})
	}

	return errs
}

// ValidateJWTSecret checks a JWT signing secret meets minimum strength
// requirements. Called separately from Validate because the secret is
// normally supplied via env var, not the config file.
func ValidateJWTSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("jwt secret: required")
	}
	if len(secret) < 32 {
		return fmt.Errorf("jwt secret: must be at least 32 characters")
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[cfg.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error, fatal, panic",
		})
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'console'",
		})
	}

	return errs
}

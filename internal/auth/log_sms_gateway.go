package auth

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogSMSGateway logs OTP codes instead of dispatching them through a
// carrier. config.SMSConfig only names a provider, without the credentials
// a real carrier integration would need, so this is the gateway wired in
// until a specific provider is configured.
type LogSMSGateway struct {
	Provider string
}

func (g *LogSMSGateway) SendOTP(ctx context.Context, mobile, code string) error {
	log.Warn().Str("provider", g.Provider).Str("mobile", mobile).Str("otp", code).
		Msg("SMS gateway not configured; logging OTP instead of sending it")
	return nil
}

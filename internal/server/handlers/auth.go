package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/config"
)

type AuthHandlers struct {
	service *auth.Service
	cfg     *config.AuthConfig
}

func NewAuthHandlers(service *auth.Service, cfg *config.AuthConfig) *AuthHandlers {
	return &AuthHandlers{service: service, cfg: cfg}
}

func (h *AuthHandlers) Service() *auth.Service {
	return h.service
}

func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	hasUsers, err := h.service.HasUsers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to check for users")
		InternalError(w, "Failed to check auth status")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"needs_setup":        !hasUsers,
		"allow_registration": h.cfg.AllowRegistration,
	})
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var input auth.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	user, err := h.service.Register(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNoIdentifier):
			Error(w, http.StatusBadRequest, "IDENTIFIER_REQUIRED", err.Error())
		case errors.Is(err, auth.ErrDuplicateIdentifier):
			Error(w, http.StatusConflict, "USER_EXISTS", err.Error())
		case errors.Is(err, auth.ErrRegistrationClosed):
			Error(w, http.StatusForbidden, "REGISTRATION_CLOSED", err.Error())
		case errors.Is(err, auth.ErrPasswordTooShort),
			errors.Is(err, auth.ErrPasswordNoUppercase),
			errors.Is(err, auth.ErrPasswordNoLowercase),
			errors.Is(err, auth.ErrPasswordNoNumber),
			errors.Is(err, auth.ErrPasswordNoSpecial):
			Error(w, http.StatusBadRequest, "INVALID_PASSWORD", err.Error())
		default:
			log.Error().Err(err).Msg("Failed to register user")
			InternalError(w, "Failed to register user")
		}
		return
	}

	JSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var input auth.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	user, tokens, err := h.service.Login(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		case errors.Is(err, auth.ErrAccountLocked):
			Error(w, http.StatusForbidden, "ACCOUNT_LOCKED", err.Error())
		case errors.Is(err, auth.ErrPasswordExpired):
			Error(w, http.StatusForbidden, "PASSWORD_EXPIRED", err.Error())
		case errors.Is(err, auth.ErrOTPExpired):
			Error(w, http.StatusUnauthorized, "OTP_EXPIRED", err.Error())
		case errors.Is(err, auth.ErrGeneralUserNoPassword):
			Error(w, http.StatusBadRequest, "OTP_REQUIRED", err.Error())
		case errors.Is(err, auth.ErrUserNotFound):
			Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		default:
			log.Error().Err(err).Msg("Failed to login user")
			InternalError(w, "Failed to login")
		}
		return
	}

	JSON(w, http.StatusOK, map[string]any{"user": user, "tokens": tokens})
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	accessToken := strings.TrimPrefix(authHeader, "Bearer ")

	if err := h.service.Logout(r.Context(), accessToken, ""); err != nil {
		log.Error().Err(err).Msg("Failed to logout")
		InternalError(w, "Failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		Unauthorized(w, "Not authenticated")
		return
	}

	JSON(w, http.StatusOK, user)
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if colonIdx := strings.LastIndex(ip, ":"); colonIdx != -1 {
		ip = ip[:colonIdx]
	}
	return ip
}

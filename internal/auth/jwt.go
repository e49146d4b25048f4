package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/formwright/formwright/internal/config"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidIssuer    = errors.New("invalid token issuer")
	ErrMissingSubject   = errors.New("token missing subject")
	ErrInvalidSignature = errors.New("invalid token signature")
)

type jwtClaims struct {
	jwt.RegisteredClaims
	Roles []Role `json:"roles,omitempty"`
}

// JWTService handles JWT token generation and validation.
type JWTService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewJWTService creates a new JWT service from config.
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
}

// GenerateAccessToken creates a new access token for the user. The JTI is
// what Logout records in the token blocklist.
func (s *JWTService) GenerateAccessToken(user *User) (token string, jti string, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(s.accessTTL)
	jti = uuid.NewString()

	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
		Roles: user.Roles,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err = tok.SignedString(s.secret)
	return token, jti, expiresAt, err
}

// GenerateRefreshToken creates a new refresh token. Its JTI is tracked the
// same way an access token's is, so Logout can revoke both with one call.
func (s *JWTService) GenerateRefreshToken(userID string) (token string, jti string, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(s.refreshTTL)
	jti = uuid.NewString()

	claims := jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    s.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		NotBefore: jwt.NewNumericDate(now),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err = tok.SignedString(s.secret)
	return token, jti, expiresAt, err
}

// ValidateAccessToken validates an access token and returns the claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, time.Time, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, time.Time{}, ErrExpiredToken
		}
		return nil, time.Time{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, time.Time{}, ErrInvalidToken
	}

	if claims.Issuer != s.issuer {
		return nil, time.Time{}, ErrInvalidIssuer
	}

	if claims.Subject == "" {
		return nil, time.Time{}, ErrMissingSubject
	}

	return &Claims{
		UserID: claims.Subject,
		JTI:    claims.ID,
		Roles:  claims.Roles,
	}, claims.ExpiresAt.Time, nil
}

// ValidateRefreshToken validates a refresh token and returns the user ID,
// the token's JTI and its expiry (so Logout can revoke it by JTI).
func (s *JWTService) ValidateRefreshToken(tokenString string) (userID string, jti string, expiresAt time.Time, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", time.Time{}, ErrExpiredToken
		}
		return "", "", time.Time{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", "", time.Time{}, ErrInvalidToken
	}

	if claims.Issuer != s.issuer {
		return "", "", time.Time{}, ErrInvalidIssuer
	}

	if claims.Subject == "" {
		return "", "", time.Time{}, ErrMissingSubject
	}

	return claims.Subject, claims.ID, claims.ExpiresAt.Time, nil
}

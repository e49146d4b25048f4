package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/config"
	"github.com/formwright/formwright/internal/database"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrDuplicateIdentifier   = errors.New("username, email, employee id or mobile already in use")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountLocked         = errors.New("account is locked")
	ErrPasswordExpired       = errors.New("password has expired")
	ErrOTPExpired            = errors.New("otp has expired or was not requested")
	ErrNoIdentifier          = errors.New("at least one of username, email, employee_id or mobile is required")
	ErrGeneralUserNoPassword = errors.New("general users cannot log in with a password")
	ErrRegistrationClosed    = errors.New("registration is closed")
)

// Service provides identity operations: registration, password/OTP login,
// lockout, password expiration and logout (C1).
type Service struct {
	db  *database.DB
	jwt *JWTService
	cfg *config.AuthConfig
	sms SMSGateway
	bl  *TokenBlacklist
}

// NewService creates an identity service. sms may be nil if OTP login is
// never used (GenerateOTP/Login-by-OTP then fail with a descriptive error).
func NewService(db *database.DB, cfg *config.AuthConfig, sms SMSGateway, bl *TokenBlacklist) *Service {
	return &Service{
		db:  db,
		jwt: NewJWTService(cfg.JWT),
		cfg: cfg,
		sms: sms,
		bl:  bl,
	}
}

// Register creates a new user. General users have no password; Roles
// defaults to {user} when empty, except the very first registered user,
// who always receives {superadmin}.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	if input.Username == "" && input.Email == "" && input.EmployeeID == "" && input.Mobile == "" {
		return nil, ErrNoIdentifier
	}

	hasUsers, err := s.HasUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking for existing users: %w", err)
	}
	if hasUsers && !s.cfg.AllowRegistration {
		return nil, ErrRegistrationClosed
	}

	if input.UserType == UserTypeGeneral {
		input.Password = ""
	} else if validationErr := ValidatePassword(input.Password, s.cfg.Password); validationErr != nil {
		return nil, fmt.Errorf("password validation: %w", validationErr)
	}

	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Username = strings.TrimSpace(input.Username)

	if dup, err := s.anyIdentifierExists(ctx, input.Username, input.Email, input.EmployeeID, input.Mobile, ""); err != nil {
		return nil, fmt.Errorf("checking identifiers: %w", err)
	} else if dup {
		return nil, ErrDuplicateIdentifier
	}

	passwordHash := ""
	if input.Password != "" {
		hash, err := HashPassword(input.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		passwordHash = hash
	}

	roles := input.Roles
	if len(roles) == 0 {
		roles = []Role{RoleUser}
	}
	if !hasUsers {
		roles = []Role{RoleSuperadmin}
	}

	now := time.Now().UTC()
	user := &User{
		ID:                 uuid.New().String(),
		Username:           input.Username,
		Email:              input.Email,
		EmployeeID:         input.EmployeeID,
		Mobile:             input.Mobile,
		UserType:           input.UserType,
		PasswordHash:       passwordHash,
		PasswordExpiration: now.Add(s.cfg.PasswordExpiration),
		Roles:              roles,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.insertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	log.Info().Str("user_id", user.ID).Strs("roles", rolesToStrings(user.Roles)).Msg("user registered")
	return user, nil
}

// Login authenticates by identifier+password or by mobile+OTP. general
// users may only use OTP login.
func (s *Service) Login(ctx context.Context, input LoginInput) (*User, *TokenPair, error) {
	var user *User
	var err error

	if input.OTP != "" {
		user, err = s.getUserByMobile(ctx, input.Mobile)
	} else {
		user, err = s.getUserByIdentifier(ctx, input.Identifier)
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("getting user: %w", err)
	}

	now := time.Now()
	if user.IsLocked(now) {
		return nil, nil, ErrAccountLocked
	}

	if input.OTP != "" {
		if err := s.checkOTP(ctx, user, input.OTP, now); err != nil {
			return nil, nil, err
		}
	} else {
		if user.UserType == UserTypeGeneral {
			return nil, nil, ErrGeneralUserNoPassword
		}
		if err := VerifyPassword(input.Password, user.PasswordHash); err != nil {
			if lockErr := s.recordFailedLogin(ctx, user, now); lockErr != nil {
				log.Error().Err(lockErr).Str("user_id", user.ID).Msg("recording failed login")
			}
			return nil, nil, ErrInvalidCredentials
		}

		if now.After(user.PasswordExpiration) {
			return nil, nil, ErrPasswordExpired
		}
	}

	if err := s.recordSuccessfulLogin(ctx, user, now); err != nil {
		return nil, nil, fmt.Errorf("recording login: %w", err)
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, fmt.Errorf("issuing tokens: %w", err)
	}

	log.Info().Str("user_id", user.ID).Msg("user logged in")
	return user, tokens, nil
}

// GenerateOTP sends a 6-digit code valid for cfg.OTP.TTL to mobile and
// increments the resend counter (a successful login resets it). Fails if
// the resend limit has already locked the account.
func (s *Service) GenerateOTP(ctx context.Context, mobile string) error {
	user, err := s.getUserByMobile(ctx, mobile)
	if err != nil {
		return err
	}

	now := time.Now()
	if user.IsLocked(now) {
		return ErrAccountLocked
	}

	if user.OTPResendCount >= s.cfg.OTP.ResendLimit {
		lockUntil := now.Add(s.cfg.LockoutDuration)
		if err := s.setLockUntil(ctx, user.ID, &lockUntil); err != nil {
			return fmt.Errorf("locking account: %w", err)
		}
		return ErrAccountLocked
	}

	code, err := generateOTPCode(s.cfg.OTP.Length)
	if err != nil {
		return fmt.Errorf("generating otp: %w", err)
	}

	if s.sms == nil {
		return errors.New("otp login requested but no SMS gateway is configured")
	}
	if err := s.sms.SendOTP(ctx, mobile, code); err != nil {
		return fmt.Errorf("sending otp: %w", err)
	}

	expiresAt := now.Add(s.cfg.OTP.TTL)
	if err := s.storeOTP(ctx, user.ID, code, expiresAt); err != nil {
		return fmt.Errorf("storing otp: %w", err)
	}

	return nil
}

// Logout revokes both the access and refresh token JTIs so neither can be
// used again before their own expiry.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken != "" {
		if claims, expiresAt, err := s.jwt.ValidateAccessToken(accessToken); err == nil {
			if revokeErr := s.bl.Revoke(ctx, claims.JTI, expiresAt); revokeErr != nil {
				return fmt.Errorf("revoking access token: %w", revokeErr)
			}
		}
	}
	if refreshToken != "" {
		if _, jti, expiresAt, err := s.jwt.ValidateRefreshToken(refreshToken); err == nil {
			if revokeErr := s.bl.Revoke(ctx, jti, expiresAt); revokeErr != nil {
				return fmt.Errorf("revoking refresh token: %w", revokeErr)
			}
		}
	}
	return nil
}

// ValidateToken validates an access token and rejects it if its JTI has
// been revoked.
func (s *Service) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	claims, _, err := s.jwt.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.bl.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, fmt.Errorf("checking token blocklist: %w", err)
	}
	if revoked {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// SetPassword changes a user's password and bumps password_expiration.
func (s *Service) SetPassword(ctx context.Context, userID, newPassword string) error {
	if validationErr := ValidatePassword(newPassword, s.cfg.Password); validationErr != nil {
		return fmt.Errorf("password validation: %w", validationErr)
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE _ff_users SET password_hash = ?, password_expiration = ?, updated_at = ? WHERE id = ?`,
		passwordHash, now.Add(s.cfg.PasswordExpiration).Format(time.RFC3339), now.Format(time.RFC3339), userID,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	log.Info().Str("user_id", userID).Msg("password changed")
	return nil
}

// HasUsers returns true if any users exist in the system.
func (s *Service) HasUsers(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM _ff_users LIMIT 1)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking for users: %w", err)
	}
	return exists, nil
}

// GetUserByID retrieves a user by ID.
func (s *Service) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUserRow(s.db.QueryRowContext(ctx, userSelectColumns+` FROM _ff_users WHERE id = ?`, id))
}

func (s *Service) getUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return s.scanUserRow(s.db.QueryRowContext(ctx,
		userSelectColumns+` FROM _ff_users WHERE username = ? OR email = ? OR employee_id = ?`,
		identifier, strings.ToLower(identifier), identifier,
	))
}

func (s *Service) getUserByMobile(ctx context.Context, mobile string) (*User, error) {
	return s.scanUserRow(s.db.QueryRowContext(ctx, userSelectColumns+` FROM _ff_users WHERE mobile = ?`, mobile))
}

func (s *Service) anyIdentifierExists(ctx context.Context, username, email, employeeID, mobile, excludeID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM _ff_users
			WHERE id != ? AND (
				(username != '' AND username = ?) OR
				(email != '' AND email = ?) OR
				(employee_id != '' AND employee_id = ?) OR
				(mobile != '' AND mobile = ?)
			)
		)
	`, excludeID, username, email, employeeID, mobile).Scan(&exists)
	return exists, err
}

const userSelectColumns = `SELECT
	id, username, email, employee_id, mobile, user_type, password_hash,
	password_expiration, roles, failed_login_attempts, otp_resend_count,
	lock_until, otp, otp_expiration, last_login, created_at, updated_at`

func (s *Service) scanUserRow(row *sql.Row) (*User, error) {
	var (
		u                                        User
		passwordExpiration, createdAt, updatedAt string
		rolesJSON                                string
		lockUntil, otpExpiration, lastLogin      sql.NullString
	)

	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.EmployeeID, &u.Mobile, &u.UserType, &u.PasswordHash,
		&passwordExpiration, &rolesJSON, &u.FailedLoginAttempts, &u.OTPResendCount,
		&lockUntil, &u.OTP, &otpExpiration, &lastLogin, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.PasswordExpiration, _ = time.Parse(time.RFC3339, passwordExpiration)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	u.Roles = rolesFromJSON(rolesJSON)

	if lockUntil.Valid {
		if t, parseErr := time.Parse(time.RFC3339, lockUntil.String); parseErr == nil {
			u.LockUntil = &t
		}
	}
	if otpExpiration.Valid {
		if t, parseErr := time.Parse(time.RFC3339, otpExpiration.String); parseErr == nil {
			u.OTPExpiration = &t
		}
	}
	if lastLogin.Valid {
		if t, parseErr := time.Parse(time.RFC3339, lastLogin.String); parseErr == nil {
			u.LastLogin = &t
		}
	}

	return &u, nil
}

func (s *Service) insertUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO _ff_users (
			id, username, email, employee_id, mobile, user_type, password_hash,
			password_expiration, roles, failed_login_attempts, otp_resend_count,
			lock_until, otp, otp_expiration, last_login, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, NULL, '', NULL, NULL, ?, ?)
	`,
		u.ID, u.Username, u.Email, u.EmployeeID, u.Mobile, u.UserType, u.PasswordHash,
		u.PasswordExpiration.Format(time.RFC3339), rolesToJSON(u.Roles),
		u.CreatedAt.Format(time.RFC3339), u.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Service) recordFailedLogin(ctx context.Context, u *User, now time.Time) error {
	attempts := u.FailedLoginAttempts + 1

	var lockUntil *time.Time
	if attempts >= s.cfg.FailedAttemptLimit {
		t := now.Add(s.cfg.LockoutDuration)
		lockUntil = &t
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE _ff_users SET failed_login_attempts = ?, lock_until = ?, updated_at = ? WHERE id = ?`,
		attempts, formatNullableTime(lockUntil), now.UTC().Format(time.RFC3339), u.ID,
	)
	return err
}

func (s *Service) recordSuccessfulLogin(ctx context.Context, u *User, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE _ff_users
		SET failed_login_attempts = 0, otp_resend_count = 0, lock_until = NULL,
			otp = '', otp_expiration = NULL, last_login = ?, updated_at = ?
		WHERE id = ?
	`, now.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339), u.ID)
	if err != nil {
		return err
	}
	loginAt := now.UTC()
	u.FailedLoginAttempts, u.OTPResendCount = 0, 0
	u.LockUntil, u.OTP, u.OTPExpiration = nil, "", nil
	u.LastLogin = &loginAt
	return nil
}

func (s *Service) setLockUntil(ctx context.Context, userID string, lockUntil *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE _ff_users SET lock_until = ?, updated_at = ? WHERE id = ?`,
		formatNullableTime(lockUntil), time.Now().UTC().Format(time.RFC3339), userID,
	)
	return err
}

func (s *Service) storeOTP(ctx context.Context, userID, code string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE _ff_users
		SET otp = ?, otp_expiration = ?, otp_resend_count = otp_resend_count + 1, updated_at = ?
		WHERE id = ?
	`, code, expiresAt.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), userID)
	return err
}

func (s *Service) checkOTP(ctx context.Context, u *User, submitted string, now time.Time) error {
	if u.OTP == "" || u.OTPExpiration == nil || now.After(*u.OTPExpiration) || u.OTP != submitted {
		if lockErr := s.recordFailedLogin(ctx, u, now); lockErr != nil {
			log.Error().Err(lockErr).Str("user_id", u.ID).Msg("recording failed otp login")
		}
		return ErrOTPExpired
	}
	return nil
}

func (s *Service) issueTokens(u *User) (*TokenPair, error) {
	accessToken, _, expiresAt, err := s.jwt.GenerateAccessToken(u)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	refreshToken, _, _, err := s.jwt.GenerateRefreshToken(u.ID)
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		TokenType:    "Bearer",
	}, nil
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func generateOTPCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	max := big.NewInt(1)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		max.Mul(max, ten)
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", length, n), nil
}

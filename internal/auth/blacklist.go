package auth

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/formwright/formwright/internal/database"
)

// TokenBlacklist is the persisted token_blocklist from §3: Logout adds a
// JTI with the token's own expiry, so a row never needs to outlive what
// it blocks. An in-memory cache fronts the DB so IsRevoked on the hot
// request path doesn't hit SQLite for every request.
type TokenBlacklist struct {
	db *database.DB

	mu     sync.RWMutex
	cache  map[string]time.Time
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewTokenBlacklist creates a token blacklist backed by db and starts its
// periodic sweep of expired rows.
func NewTokenBlacklist(db *database.DB) *TokenBlacklist {
	bl := &TokenBlacklist{
		db:     db,
		cache:  make(map[string]time.Time),
		stopCh: make(chan struct{}),
	}

	bl.wg.Add(1)
	go func() {
		defer bl.wg.Done()
		bl.cleanup()
	}()

	return bl
}

// Revoke adds a JTI to the blocklist, persisted with expiresAt so the
// cleanup sweep (and IsRevoked's lazy-expiry check) know when it's safe
// to forget.
func (bl *TokenBlacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	bl.mu.Lock()
	bl.cache[jti] = expiresAt
	bl.mu.Unlock()

	_, err := bl.db.ExecContext(ctx, `
		INSERT INTO _ff_token_blocklist (jti, expires_at)
		VALUES (?, ?)
		ON CONFLICT(jti) DO UPDATE SET expires_at = excluded.expires_at
	`, jti, expiresAt.UTC().Format(time.RFC3339))
	return err
}

// IsRevoked checks if a JTI has been revoked, checking the in-memory
// cache before falling back to the database.
func (bl *TokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	bl.mu.RLock()
	expiresAt, cached := bl.cache[jti]
	bl.mu.RUnlock()

	if cached {
		return time.Now().Before(expiresAt), nil
	}

	var expiresAtStr string
	err := bl.db.QueryRowContext(ctx,
		`SELECT expires_at FROM _ff_token_blocklist WHERE jti = ?`, jti,
	).Scan(&expiresAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	expiresAt, err = time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		return false, err
	}

	bl.mu.Lock()
	bl.cache[jti] = expiresAt
	bl.mu.Unlock()

	return time.Now().Before(expiresAt), nil
}

// cleanup periodically purges expired entries from memory and the DB.
func (bl *TokenBlacklist) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()

			bl.mu.Lock()
			for jti, expiresAt := range bl.cache {
				if now.After(expiresAt) {
					delete(bl.cache, jti)
				}
			}
			bl.mu.Unlock()

			_, _ = bl.db.Exec(`DELETE FROM _ff_token_blocklist WHERE expires_at < ?`, now.UTC().Format(time.RFC3339))
		case <-bl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (bl *TokenBlacklist) Stop() {
	close(bl.stopCh)
	bl.wg.Wait()
}

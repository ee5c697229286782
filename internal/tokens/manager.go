package tokens

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"

	"github.com/technosupport/ts-auth/internal/data"
)

var (
	ErrNotFound = errors.New("token not found")
	ErrExpired  = errors.New("token expired")
)

// Config carries the TTL knobs. A renew threshold <= 0 disables sliding
// renewal entirely.
type Config struct {
	UserTTLSeconds    int64
	ServiceTTLSeconds int64
	RenewThreshold    int64
}

// Issue is the result of issuing a token.
type Issue struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Validation is the result of validating a token.
type Validation struct {
	Record    data.TokenRecord
	Renewed   bool
	ExpiresAt int64
}

// UserPayload is the user-token document stored alongside the token.
type UserPayload struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type servicePayload struct {
	ServiceID   int    `json:"service_id"`
	ServiceName string `json:"service_name"`
	TokenType   string `json:"token_type"`
}

// Manager owns the token lifecycle and the permissions-cache tables. It is
// the only writer of auth.tokens_cache and auth.permissions_cache.
type Manager struct {
	tokens data.TokenModel
	cache  data.AccessCacheModel
	cfg    Config
	clock  Clock
	secret SecretSource
}

func NewManager(db data.DBTX, cfg Config, secret SecretSource, clock Clock) *Manager {
	if clock == nil {
		clock = SystemClock
	}
	return &Manager{
		tokens: data.TokenModel{DB: db},
		cache:  data.AccessCacheModel{DB: db},
		cfg:    cfg,
		clock:  clock,
		secret: secret,
	}
}

func (m *Manager) UserTTL() int64    { return m.cfg.UserTTLSeconds }
func (m *Manager) ServiceTTL() int64 { return m.cfg.ServiceTTLSeconds }
func (m *Manager) Now() int64        { return m.clock.Now() }

// generateTokenValue derives the opaque token: hex(SHA-256(secret || 32
// random bytes || big-endian now)). The random bytes alone carry the
// unpredictability; secret and timestamp only diversify.
func (m *Manager) generateTokenValue(now int64) (string, error) {
	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(m.secret.Secret()))
	h.Write(random)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now))
	h.Write(ts[:])

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IssueUserToken inserts a fresh token bound to the given payload.
func (m *Manager) IssueUserToken(ctx context.Context, payload UserPayload) (*Issue, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return m.issue(ctx, raw, m.cfg.UserTTLSeconds)
}

// IssueServiceToken issues the long-lived service principal token.
func (m *Manager) IssueServiceToken(ctx context.Context, serviceID int, serviceName string) (*Issue, error) {
	raw, err := json.Marshal(servicePayload{
		ServiceID:   serviceID,
		ServiceName: serviceName,
		TokenType:   "service",
	})
	if err != nil {
		return nil, err
	}
	return m.issue(ctx, raw, m.cfg.ServiceTTLSeconds)
}

func (m *Manager) issue(ctx context.Context, payload json.RawMessage, ttl int64) (*Issue, error) {
	now := m.clock.Now()
	token, err := m.generateTokenValue(now)
	if err != nil {
		return nil, err
	}
	expiresAt := now + ttl
	if err := m.tokens.Insert(ctx, token, payload, expiresAt); err != nil {
		return nil, err
	}
	return &Issue{Token: token, ExpiresAt: expiresAt}, nil
}

// LiveTokenForUser returns the newest non-expired token for the user, or
// ErrNotFound. Login calls this before issuing to bound table growth.
func (m *Manager) LiveTokenForUser(ctx context.Context, userID int) (*data.TokenRecord, error) {
	rec, err := m.tokens.FindLiveForUser(ctx, userID, m.clock.Now())
	if errors.Is(err, data.ErrTokenNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (m *Manager) shouldRenew(expiresAt, now int64) bool {
	if m.cfg.RenewThreshold <= 0 {
		return false
	}
	return expiresAt-now <= m.cfg.RenewThreshold
}

// validate is the shared routine; user and service validation only differ
// by TTL and whether renewal is allowed.
func (m *Manager) validate(ctx context.Context, token string, renewIfNeeded bool, ttl int64) (*Validation, error) {
	rec, err := m.tokens.Get(ctx, token)
	if errors.Is(err, data.ErrTokenNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	if now >= rec.ExpiresAt {
		// Best effort; a failed delete just leaves work for the reaper.
		if _, derr := m.tokens.Delete(ctx, token); derr != nil {
			log.Printf("[tokens] delete of expired token failed: %v", derr)
		}
		return nil, ErrExpired
	}

	renewed := false
	if renewIfNeeded && m.shouldRenew(rec.ExpiresAt, now) {
		updated, err := m.tokens.Touch(ctx, token, rec.ExpiresAt, now+ttl)
		switch {
		case err == nil:
			rec = updated
			renewed = true
		case errors.Is(err, data.ErrTokenNotFound):
			// Someone else won the CAS. Re-load and take their outcome.
			reloaded, rerr := m.tokens.Get(ctx, token)
			if errors.Is(rerr, data.ErrTokenNotFound) {
				return nil, ErrNotFound
			}
			if rerr != nil {
				return nil, rerr
			}
			if now >= reloaded.ExpiresAt {
				if _, derr := m.tokens.Delete(ctx, token); derr != nil {
					log.Printf("[tokens] delete of expired token failed: %v", derr)
				}
				return nil, ErrExpired
			}
			rec = reloaded
		default:
			return nil, err
		}
	}

	return &Validation{Record: *rec, Renewed: renewed, ExpiresAt: rec.ExpiresAt}, nil
}

// ValidateUserToken validates with the user TTL, optionally sliding the
// expiry when the token is close to it.
func (m *Manager) ValidateUserToken(ctx context.Context, token string, renewIfNeeded bool) (*Validation, error) {
	return m.validate(ctx, token, renewIfNeeded, m.cfg.UserTTLSeconds)
}

// ValidateServiceToken never renews; service tokens are reissued, not slid.
func (m *Manager) ValidateServiceToken(ctx context.Context, token string) (*Validation, error) {
	return m.validate(ctx, token, false, m.cfg.ServiceTTLSeconds)
}

func (m *Manager) RevokeToken(ctx context.Context, token string) (bool, error) {
	return m.tokens.Delete(ctx, token)
}

func (m *Manager) RevokeTokensOfUser(ctx context.Context, userID int) (int64, error) {
	return m.tokens.DeleteForUser(ctx, userID)
}

// Access cache pass-throughs. The manager owns both tables so every writer
// funnels through here.

func (m *Manager) LoadAccess(ctx context.Context, token string, serviceID int) (*data.AccessCacheRecord, error) {
	return m.cache.Load(ctx, token, serviceID)
}

func (m *Manager) StoreAccess(ctx context.Context, token string, serviceID int, accessJSON json.RawMessage, expiresAt int64) error {
	return m.cache.Store(ctx, token, serviceID, accessJSON, expiresAt)
}

func (m *Manager) InvalidateAccessForUser(ctx context.Context, userID int) (int64, error) {
	return m.cache.InvalidateForUser(ctx, userID)
}

func (m *Manager) InvalidateAccessForService(ctx context.Context, serviceID int) (int64, error) {
	return m.cache.InvalidateForService(ctx, serviceID)
}

func (m *Manager) InvalidateAccessForUserInService(ctx context.Context, userID, serviceID int) (int64, error) {
	return m.cache.InvalidateForUserInService(ctx, userID, serviceID)
}

func (m *Manager) ClearAccessCache(ctx context.Context) (int64, error) {
	return m.cache.Clear(ctx)
}

// Reap evicts expired rows from both tables and reports the counts.
func (m *Manager) Reap(ctx context.Context) (tokensRemoved, cacheRowsRemoved int64, err error) {
	now := m.clock.Now()
	tokensRemoved, err = m.tokens.DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	cacheRowsRemoved, err = m.cache.DeleteExpired(ctx, now)
	if err != nil {
		return tokensRemoved, 0, err
	}
	return tokensRemoved, cacheRowsRemoved, nil
}

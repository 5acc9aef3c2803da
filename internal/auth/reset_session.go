package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResetCookie carries the short-lived reset-session token between the
// reset form and its submission.
const ResetCookie = "_session"

// ErrResetSessionInvalid covers missing, expired and already-consumed
// reset sessions alike.
var ErrResetSessionInvalid = errors.New("auth: reset session invalid or expired")

type resetPayload struct {
	UserID   int64     `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// ResetSessionStore keeps single-use password-reset sessions in Redis.
// Each token is consumed on read, so a reset link or form can only be
// redeemed once.
type ResetSessionStore struct {
	redis         *redis.Client
	ttl           time.Duration
	secureCookies bool
}

func NewResetSessionStore(client *redis.Client, ttl time.Duration, secureCookies bool) *ResetSessionStore {
	if client == nil {
		panic("auth: redis client required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResetSessionStore{redis: client, ttl: ttl, secureCookies: secureCookies}
}

func resetKey(token string) string {
	return "pwreset:" + token
}

// Issue creates a new reset session for the user and returns its token.
func (s *ResetSessionStore) Issue(ctx context.Context, userID int64) (string, error) {
	payload, err := json.Marshal(resetPayload{UserID: userID, IssuedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("auth: marshal reset session: %w", err)
	}
	token := uuid.NewString()
	if err := s.redis.Set(ctx, resetKey(token), payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store reset session: %w", err)
	}
	return token, nil
}

// Pop consumes a reset session and returns the user it was issued for.
// The token is deleted atomically, so a second Pop on the same token
// fails with ErrResetSessionInvalid.
func (s *ResetSessionStore) Pop(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrResetSessionInvalid
	}
	raw, err := s.redis.GetDel(ctx, resetKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, ErrResetSessionInvalid
	}
	if err != nil {
		return 0, fmt.Errorf("auth: fetch reset session: %w", err)
	}
	var payload resetPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, ErrResetSessionInvalid
	}
	if payload.UserID == 0 || time.Since(payload.IssuedAt) > s.ttl {
		return 0, ErrResetSessionInvalid
	}
	return payload.UserID, nil
}

// TTL exposes the configured session lifetime.
func (s *ResetSessionStore) TTL() time.Duration {
	return s.ttl
}

// SetResetCookie installs the reset-session cookie on the response.
func (s *ResetSessionStore) SetResetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     ResetCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearResetCookie expires the reset-session cookie.
func (s *ResetSessionStore) ClearResetCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     ResetCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

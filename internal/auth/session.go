package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookie is the name of the signed session cookie.
const SessionCookie = "session"

type sessionClaims struct {
	UID  int64  `json:"uid"`
	CSRF string `json:"csrf"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies HMAC-signed session tokens.
type SessionManager struct {
	secret        []byte
	maxAge        time.Duration
	secureCookies bool
}

func NewSessionManager(secret string, maxAge time.Duration, secureCookies bool) (*SessionManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: session secret required")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("auth: session max age must be positive")
	}
	return &SessionManager{secret: []byte(secret), maxAge: maxAge, secureCookies: secureCookies}, nil
}

// Issue creates a session token for the user together with the CSRF
// token embedded in its claims.
func (m *SessionManager) Issue(userID int64) (token string, csrf string, err error) {
	csrf = uuid.NewString()
	now := time.Now()
	claims := sessionClaims{
		UID:  userID,
		CSRF: csrf,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("auth: sign session token: %w", err)
	}
	return token, csrf, nil
}

// Verify parses a session token. Any failure (bad signature, expiry,
// malformed claims) reads as an anonymous request.
func (m *SessionManager) Verify(token string) (userID int64, csrf string, ok bool) {
	claims := sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid || claims.UID == 0 {
		return 0, "", false
	}
	return claims.UID, claims.CSRF, true
}

// SetSessionCookie installs the session cookie on the response.
func (m *SessionManager) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func (m *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

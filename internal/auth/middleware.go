package auth

import (
	"context"
	"net/http"

	"github.com/zenohealth/salus/internal/accounts"
)

type contextKey string

const (
	userKey contextKey = "currentUser"
	csrfKey contextKey = "sessionCSRF"
)

// CurrentUser resolves the session cookie into an account and stashes
// it on the request context. Requests without a valid session pass
// through anonymously.
func CurrentUser(sessions *SessionManager, repo accounts.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, csrf, ok := sessions.Verify(cookie.Value)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			user, err := repo.GetActiveUserByID(r.Context(), userID)
			if err != nil {
				// Deleted or deactivated mid-session; drop the cookie.
				sessions.ClearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, csrfKey, csrf)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated account, if any.
func UserFromContext(ctx context.Context) (*accounts.User, bool) {
	user, ok := ctx.Value(userKey).(*accounts.User)
	return user, ok
}

// CSRFFromContext returns the CSRF token bound to the session.
func CSRFFromContext(ctx context.Context) (string, bool) {
	csrf, ok := ctx.Value(csrfKey).(string)
	return csrf, ok
}

// RequireLogin redirects anonymous requests to the login page.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCSRF rejects mutating form submissions whose _csrf field does
// not match the token bound to the session.
func RequireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		csrf, ok := CSRFFromContext(r.Context())
		if !ok || csrf == "" || r.FormValue("_csrf") != csrf {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

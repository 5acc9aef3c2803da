package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/zenohealth/salus/internal/accounts"
	"github.com/zenohealth/salus/internal/auth"
	"github.com/zenohealth/salus/internal/notify"
	"github.com/zenohealth/salus/pkg/logging"
)

// AuthHandler serves the login, logout and password lifecycle pages.
type AuthHandler struct {
	login    *auth.LoginService
	sessions *auth.SessionManager
	resets   *auth.ResetSessionStore
	repo     accounts.Repository
	mailer   *notify.Mailer
	renderer *Renderer
	logger   *logging.Logger
}

func NewAuthHandler(
	login *auth.LoginService,
	sessions *auth.SessionManager,
	resets *auth.ResetSessionStore,
	repo accounts.Repository,
	mailer *notify.Mailer,
	renderer *Renderer,
	logger *logging.Logger,
) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{
		login:    login,
		sessions: sessions,
		resets:   resets,
		repo:     repo,
		mailer:   mailer,
		renderer: renderer,
		logger:   logger,
	}
}

type loginPageData struct {
	BaseData
	Username string
}

// ShowLogin renders the login form.
// GET /login
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := loginPageData{BaseData: newBaseData(r, "Iniciar sesión")}
	data.FlashKind, data.Flash = popFlash(w, r)
	h.renderer.Render(w, http.StatusOK, "login.html", data)
}

// Login checks credentials and routes the account through the password
// lifecycle.
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	res, err := h.login.Login(r.Context(), username, password)
	if err != nil {
		h.logger.Error("login failed", "error", err)
		h.renderLoginError(w, r, username, "No se pudo iniciar sesión. Inténtelo de nuevo.")
		return
	}

	switch res.State {
	case auth.StateInvalidCredentials:
		h.renderLoginError(w, r, username, "Credenciales incorrectas.")

	case auth.StateLocked:
		h.renderLoginError(w, r, username, "Por seguridad, el acceso de este usuario se encuentra bloqueado.")

	case auth.StateForcedReset:
		token, err := h.resets.Issue(r.Context(), res.User.ID)
		if err != nil {
			h.logger.Error("failed to issue reset session", "error", err, "user_id", res.User.ID)
			h.renderLoginError(w, r, username, "No se pudo iniciar sesión. Inténtelo de nuevo.")
			return
		}
		h.resets.SetResetCookie(w, token)
		http.Redirect(w, r, "/password/reset", http.StatusFound)

	case auth.StateAuthenticated:
		token, _, err := h.sessions.Issue(res.User.ID)
		if err != nil {
			h.logger.Error("failed to issue session", "error", err, "user_id", res.User.ID)
			h.renderLoginError(w, r, username, "No se pudo iniciar sesión. Inténtelo de nuevo.")
			return
		}
		h.resets.ClearResetCookie(w)
		h.sessions.SetSessionCookie(w, token)
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func (h *AuthHandler) renderLoginError(w http.ResponseWriter, r *http.Request, username, message string) {
	data := loginPageData{BaseData: newBaseData(r, "Iniciar sesión"), Username: username}
	data.Flash = message
	data.FlashKind = "error"
	h.renderer.Render(w, http.StatusUnauthorized, "login.html", data)
}

// Logout drops both cookies and returns to the login page.
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearSessionCookie(w)
	h.resets.ClearResetCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// ShowPasswordRecover renders the forgot-password form.
// GET /password/recover
func (h *AuthHandler) ShowPasswordRecover(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, "password_recover.html", newBaseData(r, "Recuperar contraseña"))
}

// PasswordRecover issues a fresh one-time password and emails it. The
// response never reveals whether the account exists.
// POST /password/recover
func (h *AuthHandler) PasswordRecover(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))

	user, err := h.repo.GetUserByUsername(r.Context(), username)
	if err == nil && user.IsActive {
		otp, err := auth.GenerateRandomPassword()
		if err == nil {
			var hash string
			if hash, err = auth.HashPassword(otp); err == nil {
				err = h.repo.ResetPassword(r.Context(), user.ID, hash)
			}
		}
		if err != nil {
			h.logger.Error("password recover failed", "error", err, "user_id", user.ID)
		} else {
			h.logger.Info("one-time password issued for recovery", "user_id", user.ID)
			if h.mailer != nil {
				h.mailer.SendAsync(notify.NotificationPasswordRecovered, user.Email, user.Name, notify.MailData{
					Name:              user.Name,
					Username:          user.Username,
					TemporaryPassword: otp,
				})
			}
		}
	} else if err != nil && !errors.Is(err, accounts.ErrUserNotFound) {
		h.logger.Error("password recover lookup failed", "error", err)
	}

	http.Redirect(w, r, "/password/recover/sent", http.StatusSeeOther)
}

// ShowPasswordRecoverSent renders the post-recovery confirmation.
// GET /password/recover/sent
func (h *AuthHandler) ShowPasswordRecoverSent(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, "password_recover_sent.html", newBaseData(r, "Revise su correo"))
}

// ShowPasswordReset renders the forced password change form. The reset
// session is consumed on read and re-issued so the subsequent POST can
// consume it again.
// GET /password/reset
func (h *AuthHandler) ShowPasswordReset(w http.ResponseWriter, r *http.Request) {
	user, ok := h.consumeResetSession(w, r)
	if !ok {
		return
	}

	token, err := h.resets.Issue(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to reissue reset session", "error", err, "user_id", user.ID)
		h.redirectToLogin(w, r, "Sesión inválida o caducada.")
		return
	}
	h.resets.SetResetCookie(w, token)
	h.renderer.Render(w, http.StatusOK, "password_reset.html", newBaseData(r, "Nueva contraseña"))
}

// PasswordReset applies the user's chosen password and sends them back
// to the login page.
// POST /password/reset
func (h *AuthHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	user, ok := h.consumeResetSession(w, r)
	if !ok {
		return
	}

	password := r.FormValue("password")
	if len(password) < 8 || password != r.FormValue("password_confirm") {
		// Give the form another chance with a fresh session.
		token, err := h.resets.Issue(r.Context(), user.ID)
		if err != nil {
			h.redirectToLogin(w, r, "Sesión inválida o caducada.")
			return
		}
		h.resets.SetResetCookie(w, token)
		data := newBaseData(r, "Nueva contraseña")
		data.Flash = "Las contraseñas no coinciden o son demasiado cortas."
		data.FlashKind = "error"
		h.renderer.Render(w, http.StatusBadRequest, "password_reset.html", data)
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		h.logger.Error("failed to hash new password", "error", err, "user_id", user.ID)
		h.redirectToLogin(w, r, "No se pudo cambiar la contraseña.")
		return
	}
	if err := h.repo.UpdatePassword(r.Context(), user.ID, hash); err != nil {
		h.logger.Error("failed to update password", "error", err, "user_id", user.ID)
		h.redirectToLogin(w, r, "No se pudo cambiar la contraseña.")
		return
	}

	h.logger.Info("password changed", "user_id", user.ID)
	h.resets.ClearResetCookie(w)
	setFlash(w, "success", "Contraseña actualizada correctamente. Inicie sesión.")
	http.Redirect(w, r, "/login", http.StatusFound)
}

// consumeResetSession pops the reset-session cookie and loads the user
// it belongs to, enforcing that a reset is actually pending.
func (h *AuthHandler) consumeResetSession(w http.ResponseWriter, r *http.Request) (*accounts.User, bool) {
	cookie, err := r.Cookie(auth.ResetCookie)
	if err != nil || cookie.Value == "" {
		h.redirectToLogin(w, r, "Sesión inválida o caducada.")
		return nil, false
	}
	userID, err := h.resets.Pop(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, auth.ErrResetSessionInvalid) {
			h.logger.Error("failed to read reset session", "error", err)
		}
		h.redirectToLogin(w, r, "Sesión inválida o caducada.")
		return nil, false
	}

	user, err := h.repo.GetActiveUserByID(r.Context(), userID)
	if err != nil || !user.IsPasswordExpired {
		h.redirectToLogin(w, r, "Acceso no autorizado.")
		return nil, false
	}
	return user, true
}

func (h *AuthHandler) redirectToLogin(w http.ResponseWriter, r *http.Request, message string) {
	h.resets.ClearResetCookie(w)
	setFlash(w, "error", message)
	http.Redirect(w, r, "/login", http.StatusFound)
}

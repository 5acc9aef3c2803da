package handlers

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/zenohealth/salus/internal/accounts"
	"github.com/zenohealth/salus/internal/auth"
	"github.com/zenohealth/salus/pkg/logging"
)

// Renderer executes the embedded page templates against the shared
// layout.
type Renderer struct {
	templates map[string]*template.Template
	logger    *logging.Logger
}

func NewRenderer(templates map[string]*template.Template, logger *logging.Logger) *Renderer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Renderer{templates: templates, logger: logger}
}

// Render writes the page with the given status. The data struct must
// embed BaseData so the layout finds its fields.
func (rd *Renderer) Render(w http.ResponseWriter, status int, page string, data any) {
	t, ok := rd.templates[page]
	if !ok {
		rd.logger.Error("unknown template requested", "page", page)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		rd.logger.Error("template execution failed", "page", page, "error", err)
	}
}

// BaseData carries the fields every page template can reference.
type BaseData struct {
	Title     string
	User      *accounts.User
	CSRF      string
	Flash     string
	FlashKind string
}

// newBaseData pulls the session user and CSRF token off the request.
func newBaseData(r *http.Request, title string) BaseData {
	data := BaseData{Title: title}
	if user, ok := auth.UserFromContext(r.Context()); ok {
		data.User = user
	}
	if csrf, ok := auth.CSRFFromContext(r.Context()); ok {
		data.CSRF = csrf
	}
	return data
}

const flashCookie = "_flash"

// setFlash stores a one-shot message for the next page load. The value
// is escaped because messages carry accents and spaces.
func setFlash(w http.ResponseWriter, kind, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(kind + "|" + message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the one-shot message, if any.
func popFlash(w http.ResponseWriter, r *http.Request) (kind, message string) {
	cookie, err := r.Cookie(flashCookie)
	if err != nil || cookie.Value == "" {
		return "", ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	value, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", ""
	}
	for i := 0; i < len(value); i++ {
		if value[i] == '|' {
			return value[:i], value[i+1:]
		}
	}
	return "info", value
}

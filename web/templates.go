// Package web embeds the portal's HTML templates.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Static returns the embedded static assets rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

var pages = []string{
	"login.html",
	"home.html",
	"appointments.html",
	"reports.html",
	"register.html",
	"register_success.html",
	"password_recover.html",
	"password_recover_sent.html",
	"password_reset.html",
}

// ParseTemplates parses every page against the shared layout. The
// returned map is keyed by page file name.
func ParseTemplates() (map[string]*template.Template, error) {
	parsed := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", page, err)
		}
		parsed[page] = t
	}
	return parsed, nil
}

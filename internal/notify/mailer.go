package notify

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/zenohealth/salus/pkg/logging"
)

// NotificationType selects the message template.
type NotificationType int

const (
	// NotificationWelcome greets a freshly registered patient and
	// carries their temporary password.
	NotificationWelcome NotificationType = iota

	// NotificationPasswordRecovered carries the temporary password
	// issued by the forgot-password flow.
	NotificationPasswordRecovered

	// NotificationPasswordReset carries a temporary password issued
	// by an administrator.
	NotificationPasswordReset
)

// MailData feeds the notification templates.
type MailData struct {
	Name              string
	Username          string
	TemporaryPassword string
	PortalURL         string
}

var mailSubjects = map[NotificationType]string{
	NotificationWelcome:           "Bienvenido al Portal del Paciente",
	NotificationPasswordRecovered: "Recuperación de contraseña",
	NotificationPasswordReset:     "Su contraseña ha sido restablecida",
}

var mailTemplates = map[NotificationType]*template.Template{
	NotificationWelcome: template.Must(template.New("welcome").Parse(`<p>Hola {{.Name}},</p>
<p>Su cuenta del portal del paciente ha sido creada.</p>
<p>Usuario: <strong>{{.Username}}</strong><br>
Contraseña temporal: <strong>{{.TemporaryPassword}}</strong></p>
<p>Esta contraseña es de un solo uso: al iniciar sesión deberá elegir una nueva.</p>
<p><a href="{{.PortalURL}}/login">Acceder al portal</a></p>`)),

	NotificationPasswordRecovered: template.Must(template.New("recovered").Parse(`<p>Hola {{.Name}},</p>
<p>Hemos recibido una solicitud para recuperar su contraseña.</p>
<p>Contraseña temporal: <strong>{{.TemporaryPassword}}</strong></p>
<p>Esta contraseña es de un solo uso: al iniciar sesión deberá elegir una nueva.</p>
<p><a href="{{.PortalURL}}/login">Acceder al portal</a></p>`)),

	NotificationPasswordReset: template.Must(template.New("reset").Parse(`<p>Hola {{.Name}},</p>
<p>Un administrador ha restablecido su contraseña.</p>
<p>Contraseña temporal: <strong>{{.TemporaryPassword}}</strong></p>
<p>Esta contraseña es de un solo uso: al iniciar sesión deberá elegir una nueva.</p>
<p><a href="{{.PortalURL}}/login">Acceder al portal</a></p>`)),
}

// Mailer renders and dispatches patient-facing portal emails.
type Mailer struct {
	sender    EmailSender
	portalURL string
	logger    *logging.Logger
}

// NewMailer creates a mailer over the given sender. A nil sender
// degrades to the logging stub so callers never nil-check.
func NewMailer(sender EmailSender, portalURL string, logger *logging.Logger) *Mailer {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	return &Mailer{sender: sender, portalURL: strings.TrimRight(portalURL, "/"), logger: logger}
}

// Send renders the template for the notification type and sends it.
func (m *Mailer) Send(ctx context.Context, kind NotificationType, to, toName string, data MailData) error {
	tmpl, ok := mailTemplates[kind]
	if !ok {
		return fmt.Errorf("notify: unknown notification type %d", kind)
	}
	if data.PortalURL == "" {
		data.PortalURL = m.portalURL
	}

	var html strings.Builder
	if err := tmpl.Execute(&html, data); err != nil {
		return fmt.Errorf("notify: render %q: %w", tmpl.Name(), err)
	}

	msg := EmailMessage{
		To:      to,
		ToName:  toName,
		Subject: mailSubjects[kind],
		Body:    plainText(html.String()),
		HTML:    html.String(),
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return err
	}
	return nil
}

// SendAsync dispatches the email without blocking the caller. Delivery
// failures are logged, never surfaced: a lost email must not fail the
// flow that triggered it.
func (m *Mailer) SendAsync(kind NotificationType, to, toName string, data MailData) {
	go func() {
		ctx := context.Background()
		if err := m.Send(ctx, kind, to, toName, data); err != nil {
			m.logger.Error("async email delivery failed", "error", err, "to", to, "type", kind)
		}
	}()
}

var htmlTagReplacer = strings.NewReplacer("<br>", "\n", "</p>", "\n\n")

// plainText produces a crude text fallback from the HTML body.
func plainText(html string) string {
	s := htmlTagReplacer.Replace(html)
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

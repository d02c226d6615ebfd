package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Alert describes a DAM failure worth waking someone for.
type Alert struct {
	Realm      string
	DamID      string
	Message    string
	Detail     string
	At         time.Time
	ConsoleURL string
}

var alertTemplate = template.Must(template.New("alert").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8">
    <title>{{.Message}}</title>
  </head>
  <body style="font-family: Helvetica, sans-serif; font-size: 16px; line-height: 1.3; background-color: #f4f5f6; margin: 0; padding: 24px;">
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" style="max-width: 600px; margin: 0 auto; background: #ffffff; border: 1px solid #eaebed; border-radius: 16px;" width="100%">
      <tr>
        <td style="padding: 24px;">
          <p style="margin: 0 0 16px 0; font-weight: bold;">{{.Message}}</p>
          <p style="margin: 0 0 16px 0;">DAM <strong>{{.DamID}}</strong> in realm <strong>{{.Realm}}</strong> failed at {{.At.Format "2006-01-02 15:04:05 MST"}}.</p>
          {{if .Detail}}<pre style="margin: 0 0 16px 0; padding: 12px; background: #f4f5f6; border-radius: 4px; white-space: pre-wrap;">{{.Detail}}</pre>{{end}}
          {{if .ConsoleURL}}<p style="margin: 0;"><a href="{{.ConsoleURL}}" style="color: #0867ec;">Open the admin console</a></p>{{end}}
        </td>
      </tr>
    </table>
  </body>
</html>`))

// RenderAlert returns the subject and HTML body for alert.
func RenderAlert(alert Alert) (string, string, error) {
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}

	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, alert); err != nil {
		return "", "", fmt.Errorf("render alert email: %w", err)
	}
	subject := fmt.Sprintf("[ddap-admin] %s (%s/%s)", alert.Message, alert.Realm, alert.DamID)
	return subject, buf.String(), nil
}

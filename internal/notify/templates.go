package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

const timeLayout = "2006-01-02 15:04:05 MST"

var bodies = template.Must(template.New("email").Parse(`
{{- define "registration" -}}
Hello {{.Name}},

Welcome aboard!

Your account has been created. These are your access credentials:

Email: {{.Email}}
Temporary password: {{.TemporaryPassword}}

IMPORTANT: sign in and change your password at the first opportunity.

Sign in at: {{.LoginURL}}

If you did not request this account, contact us immediately.
{{end}}
{{- define "login-success" -}}
Hello {{.Name}},

We detected a successful sign-in to your account:

Date/time: {{.Time}}
Source IP: {{.IP}}

If this was you, you can ignore this message.
If it was not, contact us immediately.
{{end}}
{{- define "login-failure" -}}
Hello {{.Name}},

SECURITY ALERT

We detected an unsuccessful sign-in attempt on your account:

Date/time: {{.Time}}
Source IP: {{.IP}}

If this attempt was not made by you, we recommend that you:
1. Change your password immediately
2. Check whether anyone else has access to your credentials
3. Contact the IT team
{{end}}`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// RegistrationEmail builds the onboarding email carrying the temporary password.
func RegistrationEmail(recipient, name, temporaryPassword, loginURL string, now time.Time) (Email, error) {
	body, err := render("registration", map[string]string{
		"Name":              name,
		"Email":             recipient,
		"TemporaryPassword": temporaryPassword,
		"LoginURL":          loginURL,
	})
	if err != nil {
		return Email{}, err
	}
	return Email{
		Recipient:         recipient,
		Subject:           "Welcome - your access credentials",
		Body:              body,
		EmailType:         EmailRegistration,
		TemplateID:        TemplateRegistration,
		SentAt:            now.UTC(),
		UserName:          name,
		TemporaryPassword: temporaryPassword,
	}, nil
}

// LoginEmail builds the sign-in notification for either outcome.
func LoginEmail(recipient, name string, success bool, ip string, now time.Time) (Email, error) {
	tmpl, emailType, templateID, subject := "login-failure", EmailLoginFailure, TemplateLoginFailure, "Unauthorized sign-in attempt"
	if success {
		tmpl, emailType, templateID, subject = "login-success", EmailLoginSuccess, TemplateLoginSuccess, "Successful sign-in"
	}
	if ip == "" {
		ip = "unknown"
	}
	body, err := render(tmpl, map[string]string{
		"Name": name,
		"Time": now.UTC().Format(timeLayout),
		"IP":   ip,
	})
	if err != nil {
		return Email{}, err
	}
	return Email{
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		EmailType:  emailType,
		TemplateID: templateID,
		SentAt:     now.UTC(),
		UserName:   name,
	}, nil
}

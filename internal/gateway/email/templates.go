package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// VerificationMessage builds the email sent after registration and on resend.
func VerificationMessage(to, name, link string) (Message, error) {
	html, err := render("verify_email.html", map[string]string{"Name": name, "Link": link})
	if err != nil {
		return Message{}, err
	}
	return Message{Recipients: []string{to}, Subject: "Verify your email", HTML: html}, nil
}

// ResetPasswordMessage builds the forgot-password email.
func ResetPasswordMessage(to, name, link string) (Message, error) {
	html, err := render("reset_password.html", map[string]string{"Name": name, "Link": link})
	if err != nil {
		return Message{}, err
	}
	return Message{Recipients: []string{to}, Subject: "Reset your password", HTML: html}, nil
}

// AccountDeletedMessage confirms an account deletion.
func AccountDeletedMessage(to, name string) (Message, error) {
	html, err := render("account_deleted.html", map[string]string{"Name": name})
	if err != nil {
		return Message{}, err
	}
	return Message{Recipients: []string{to}, Subject: "Your account has been deleted", HTML: html}, nil
}

package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Template data shared by the passcode e-mails.
type codeData struct {
	Name        string
	Code        string
	Minutes     int
	MaxAttempts int
}

var verificationTmpl = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Welcome{{if .Name}}, {{.Name}}{{end}}!</h2>
  <p>Use the code below to verify your email address:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>The code is valid for {{.Minutes}} minutes and can be tried {{.MaxAttempts}} times.</p>
  <p>If you did not create an account, you can ignore this message.</p>
</body>
</html>`))

var resetTmpl = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Password reset</h2>
  <p>Hello{{if .Name}} {{.Name}}{{end}}, we received a request to reset your password.</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>The code is valid for {{.Minutes}} minutes and can be tried {{.MaxAttempts}} times.</p>
  <p>If you did not request a reset, your password stays unchanged.</p>
</body>
</html>`))

const (
	VerificationSubject  = "Verify your email address"
	PasswordResetSubject = "Your password reset code"
)

// Verification renders the e-mail sent after registration or a resend.
func Verification(name, code string, validity time.Duration, maxAttempts int) (string, error) {
	return render(verificationTmpl, name, code, validity, maxAttempts)
}

// PasswordReset renders the e-mail sent by a forgot-password request.
func PasswordReset(name, code string, validity time.Duration, maxAttempts int) (string, error) {
	return render(resetTmpl, name, code, validity, maxAttempts)
}

func render(t *template.Template, name, code string, validity time.Duration, maxAttempts int) (string, error) {
	var buf bytes.Buffer
	err := t.Execute(&buf, codeData{
		Name:        name,
		Code:        code,
		Minutes:     int(validity / time.Minute),
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}

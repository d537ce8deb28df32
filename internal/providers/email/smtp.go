package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

var overdueNoticeTmpl = template.Must(template.New("overdue_notice").Parse(`
<html>
  <body>
    <p>Hello {{.AccountName}},</p>
    <p>{{.Message}}</p>
    <p>Your account with {{.TenantName}} has an outstanding balance of
       <strong>{{.BalanceDue}} {{.Currency}}</strong>.</p>
    <p>Please settle the open invoices to restore full service.</p>
    {{if .SupportContact}}<p>Questions? Contact {{.SupportContact}}.</p>{{end}}
  </body>
</html>
`))

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s",
		strings.Join(to, ", "), subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, p.cfg.From, to, msg)
}

func (p *SMTPProvider) SendOverdueNotice(ctx context.Context, notice OverdueNotice) error {
	if strings.TrimSpace(notice.To) == "" {
		return fmt.Errorf("overdue notice has no recipient")
	}

	var body bytes.Buffer
	if err := overdueNoticeTmpl.Execute(&body, notice); err != nil {
		return fmt.Errorf("failed to render overdue notice: %w", err)
	}

	subject := fmt.Sprintf("Action required: your %s account is overdue", notice.TenantName)
	return p.Send(ctx, []string{notice.To}, subject, body.String())
}

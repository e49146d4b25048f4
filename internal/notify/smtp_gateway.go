package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/formwright/formwright/internal/config"
)

// SMTPGateway sends mail through a configured SMTP relay. No third-party
// mail client appears anywhere in the retrieved corpus, so this sticks to
// net/smtp rather than inventing a dependency that isn't grounded in it.
type SMTPGateway struct {
	addr        string
	auth        smtp.Auth
	fromAddress string
	fromName    string
}

// NewSMTPGateway builds a gateway from the configured relay. host/port/
// username/password come from the environment in production deployments;
// cfg only carries the From identity and link base URL used in bodies.
func NewSMTPGateway(host string, port int, username, password string, cfg config.EmailConfig) *SMTPGateway {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPGateway{
		addr:        fmt.Sprintf("%s:%d", host, port),
		auth:        auth,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
	}
}

func (g *SMTPGateway) SendEmail(ctx context.Context, to []string, subject, textBody, htmlBody string) error {
	from := g.fromAddress
	if g.fromName != "" {
		from = fmt.Sprintf("%s <%s>", g.fromName, g.fromAddress)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", from)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&body, "Subject: %s\r\n", subject)
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	if htmlBody != "" {
		body.WriteString(htmlBody)
	} else {
		body.WriteString(textBody)
	}

	return smtp.SendMail(g.addr, g.auth, g.fromAddress, to, []byte(body.String()))
}

// Package notifier delivers operator alerts over SMTP with a per-subject
// cooldown so a persistent failure does not flood the inbox.
package notifier

import (
	"fmt"
	"html"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"botfleet/internal/core/logger"
	"botfleet/internal/core/metrics"
	"botfleet/internal/core/ports"
)

type Config struct {
	Server     string
	Port       int
	User       string
	Password   string
	From       string
	Recipients []string
	Cooldown   time.Duration
}

// Mailer implements ports.Notifier. Critical alerts pass through the
// cooldown gate; informational ones always go out.
type Mailer struct {
	cfg  Config
	gate *CooldownGate
	log  *slog.Logger

	// send is swappable in tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ ports.Notifier = (*Mailer)(nil)

func New(cfg Config) *Mailer {
	return &Mailer{
		cfg:  cfg,
		gate: NewCooldownGate(cfg.Cooldown),
		log:  logger.With("component", "notifier"),
		send: smtp.SendMail,
	}
}

// SendAlert delivers one alert. Returns whether the mail actually went out;
// a failure is logged and counted, never propagated, because alerting must
// not break the orchestration loop.
func (m *Mailer) SendAlert(subject, body string, critical bool) bool {
	if len(m.cfg.Recipients) == 0 {
		m.log.Warn("no alert recipients configured, dropping alert", "subject", subject)
		return false
	}

	if critical && !m.gate.Allow(subject) {
		m.log.Warn("alert suppressed by cooldown", "subject", subject)
		metrics.AlertsTotal.WithLabelValues("suppressed").Inc()
		return false
	}

	prefix := "[ALERT]"
	if critical {
		prefix = "[CRITICAL]"
	}

	msg := buildMessage(m.cfg.From, m.cfg.Recipients, prefix+" "+subject, body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Server, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Server)
	}

	if err := m.send(addr, auth, m.cfg.From, m.cfg.Recipients, msg); err != nil {
		m.log.Error("failed to send alert", "subject", subject, "error", err)
		metrics.AlertsTotal.WithLabelValues("failed").Inc()
		return false
	}

	m.log.Info("alert sent", "subject", subject, "critical", critical)
	metrics.AlertsTotal.WithLabelValues("sent").Inc()
	return true
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "<html><body><h2>%s</h2><pre>%s</pre><p>Sent at %s</p></body></html>\r\n",
		html.EscapeString(subject),
		html.EscapeString(body),
		time.Now().Format(time.RFC3339))
	return []byte(b.String())
}

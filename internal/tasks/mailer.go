package tasks

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/agentflow/internal/engine"
)

// Способы доставки письма.
const (
	DeliverNow   = "deliver_now"
	DeliverLater = "deliver_later"
)

// Mail — письмо для отправки.
type Mail struct {
	From    string
	To      []string
	Cc      []string
	Subject string
	Body    string
	HTML    bool
}

// MailerTask — отправка письма.
//
//	to: user_email             # ключ Context, адрес или список
//	cc: [ops@example.com]
//	subject: "Report for {{name}}"
//	body: "{{summary}}"
//	html: false
//	delivery_method: deliver_now | deliver_later
//
// deliver_later отправляет письмо в фоне и не ждёт результата.
// Результат: {mail_sent, delivery_method, message_id, to, subject}.
type MailerTask struct {
	Base
	mailer   Mailer
	logger   *slog.Logger
	delivery string
}

type mailConfig struct {
	From    string `mapstructure:"from"`
	Subject string `mapstructure:"subject"`
	Body    string `mapstructure:"body"`
	HTML    bool   `mapstructure:"html"`
}

// NewMailerTask создаёт MailerTask.
func NewMailerTask(name string, cfg map[string]any, deps Deps) (*MailerTask, error) {
	base, err := NewBase(TypeMailer, name, cfg, deps.Defaults)
	if err != nil {
		return nil, err
	}

	delivery := GetConfigString(cfg, "delivery_method")
	if delivery == "" {
		delivery = DeliverNow
	}
	if delivery != DeliverNow && delivery != DeliverLater {
		return nil, base.configErr("delivery_method", fmt.Sprintf("invalid delivery method %q", delivery))
	}
	if cfg["to"] == nil {
		return nil, base.configErr("to", "recipient is required")
	}
	if deps.Mailer == nil {
		return nil, base.configErr("", "mailer is not configured")
	}

	return &MailerTask{Base: base, mailer: deps.Mailer, logger: deps.logger(), delivery: delivery}, nil
}

// Description возвращает способ доставки.
func (t *MailerTask) Description() string { return "mail " + t.delivery }

// Execute отправляет письмо.
func (t *MailerTask) Execute(ctx context.Context, c *engine.Context) (any, error) {
	raw, err := t.render(ctx, c)
	if err != nil {
		return nil, err
	}

	var cfg mailConfig
	if err := decodeConfig(t.name, raw, &cfg); err != nil {
		return nil, err
	}

	msg := Mail{
		From:    cfg.From,
		To:      stringList(fromContext(c, raw["to"], "to")),
		Cc:      stringList(fromContext(c, raw["cc"], "cc")),
		Subject: cfg.Subject,
		Body:    cfg.Body,
		HTML:    cfg.HTML,
	}
	if len(msg.To) == 0 {
		return nil, t.configErr("to", "recipient is required")
	}

	result := map[string]any{
		"mail_sent":       true,
		"delivery_method": t.delivery,
		"to":              strings.Join(msg.To, ", "),
		"subject":         msg.Subject,
	}

	if t.delivery == DeliverLater {
		bg := context.WithoutCancel(ctx)
		go func() {
			sendCtx, cancel := context.WithTimeout(bg, t.timeout)
			defer cancel()
			if _, err := t.mailer.Send(sendCtx, msg); err != nil {
				t.logger.Error("deferred email delivery failed", "task", t.name, "error", err)
			}
		}()
		result["message_id"] = ""
		return result, nil
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	id, err := t.mailer.Send(ctx, msg)
	if err != nil {
		return nil, t.fail("Email delivery failed: "+err.Error(), err)
	}
	result["message_id"] = id
	return result, nil
}

// SMTPMailer отправляет письма через SMTP сервер.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
}

// NewSMTPMailer создаёт SMTPMailer. Пустой username отключает авторизацию.
func NewSMTPMailer(addr, from, username, password string) *SMTPMailer {
	m := &SMTPMailer{Addr: addr, From: from}
	if username != "" {
		host, _, _ := net.SplitHostPort(addr)
		m.Auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

// Send отправляет письмо и возвращает Message-ID.
func (m *SMTPMailer) Send(ctx context.Context, msg Mail) (string, error) {
	from := msg.From
	if from == "" {
		from = m.From
	}
	if from == "" {
		return "", fmt.Errorf("sender address is not configured")
	}

	host, _, err := net.SplitHostPort(m.Addr)
	if err != nil {
		return "", fmt.Errorf("smtp addr: %w", err)
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), host)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", m.Addr)
	if err != nil {
		return "", fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(nil); err != nil {
			return "", fmt.Errorf("starttls: %w", err)
		}
	}
	if m.Auth != nil {
		if err := client.Auth(m.Auth); err != nil {
			return "", fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return "", fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range append(append([]string{}, msg.To...), msg.Cc...) {
		if err := client.Rcpt(rcpt); err != nil {
			return "", fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(from, messageID, msg)); err != nil {
		return "", fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close message: %w", err)
	}

	return messageID, client.Quit()
}

func buildMessage(from, messageID string, msg Mail) []byte {
	var buf bytes.Buffer
	contentType := "text/plain"
	if msg.HTML {
		contentType = "text/html"
	}

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: %s; charset=UTF-8\r\n\r\n", contentType)
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return buf.Bytes()
}

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Security selects how the SMTP connection is protected.
type Security string

const (
	SecurityStartTLS Security = "starttls"
	SecurityTLS      Security = "tls"  // implicit TLS, usually port 465
	SecurityNone     Security = "none" // plaintext relay on a trusted network
)

type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	// Security defaults to implicit TLS on port 465 and STARTTLS elsewhere.
	Security Security
}

type sendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// SMTP emails the user; user ids are their email addresses.
type SMTP struct {
	cfg  SMTPConfig
	now  func() time.Time
	send sendFunc
}

// NewSMTP fails on an unknown security mode.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	cfg.Security = securityFor(cfg)
	var send sendFunc
	switch cfg.Security {
	case SecurityStartTLS:
		send = smtp.SendMail
	case SecurityTLS:
		send = smtp.SendMailTLS
	case SecurityNone:
		send = sendPlain
	default:
		return nil, fmt.Errorf("smtp: unknown security mode %q", cfg.Security)
	}
	return &SMTP{cfg: cfg, now: time.Now, send: send}, nil
}

func securityFor(cfg SMTPConfig) Security {
	if cfg.Security != "" {
		return Security(strings.ToLower(string(cfg.Security)))
	}
	if _, port, err := net.SplitHostPort(cfg.Addr); err == nil && port == "465" {
		return SecurityTLS
	}
	return SecurityStartTLS
}

// sendPlain delivers without TLS. go-smtp's SendMail insists on STARTTLS.
func sendPlain(addr string, a sasl.Client, from string, to []string, r io.Reader) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	if a != nil {
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.SendMail(from, to, r); err != nil {
		return err
	}
	return c.Quit()
}

func (s *SMTP) Notify(ctx context.Context, userID string, invoiceCount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.Contains(userID, "@") {
		return fmt.Errorf("smtp notify: %q is not an email address", userID)
	}
	msg, err := s.compose(userID, invoiceCount)
	if err != nil {
		return err
	}
	var auth sasl.Client
	if s.cfg.Username != "" {
		auth = sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	}
	if err := s.send(s.cfg.Addr, auth, s.cfg.From, []string{userID}, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("smtp notify: %w", err)
	}
	return nil
}

func (s *SMTP) compose(to string, count int) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{{Name: "Invoices Tracker", Address: s.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject(count))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("compose message: %w", err)
	}
	body := fmt.Sprintf("Your latest mailbox scan recorded %s.\r\nThey are now in your invoices spreadsheet.\r\n", strings.TrimSuffix(subject(count), " found"))
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/models"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"
)

// Message is one outbound plain-text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages. Implementations return an error for anything
// worth retrying.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender returns an SMTP sender, or a LogSender when no host is configured.
func NewSender(cfg config.MailConfig, logger *zerolog.Logger) Sender {
	if cfg.Host == "" {
		return NewLogSender(logger)
	}
	return NewSMTPSender(cfg)
}

// SMTPSender delivers through go-mail. UseSSL selects implicit TLS, StartTLS
// makes the upgrade mandatory, otherwise the connection stays plain.
type SMTPSender struct {
	cfg     config.MailConfig
	timeout time.Duration
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, timeout: 10 * time.Second}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("recipient is required")
	}

	m, err := s.compose(msg)
	if err != nil {
		return err
	}
	client, err := s.client()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) client() (*gomail.Client, error) {
	opts := []gomail.Option{gomail.WithTimeout(s.timeout)}
	if s.cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(s.cfg.Port))
	}
	switch {
	case s.cfg.UseSSL:
		opts = append(opts, gomail.WithSSL())
	case s.cfg.StartTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return client, nil
}

func (s *SMTPSender) compose(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", s.cfg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail not delivered, no smtp host configured")
	return nil
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(
	`Your booking #{{.ID}} is confirmed.

Check-in:  {{.CheckIn}}
Check-out: {{.CheckOut}}
Nights:    {{.Nights}}
Rooms:     {{range $i, $r := .Rooms}}{{if $i}}, {{end}}{{$r.RoomID}}{{end}}
Guests:    {{.NumGuests}}
Total:     {{.TotalAmount}}
`))

// BookingConfirmation renders the confirmation mail for b.
func BookingConfirmation(b *models.Booking) (Message, error) {
	data := struct {
		*models.Booking
		Nights int
	}{b, b.Range().Nights()}

	var body bytes.Buffer
	if err := confirmationTemplate.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render confirmation: %w", err)
	}
	return Message{
		To:      b.ContactEmail,
		Subject: fmt.Sprintf("Booking #%d confirmed", b.ID),
		Body:    body.String(),
	}, nil
}

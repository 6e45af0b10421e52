package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/pkg/utils"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender implements port.EmailSender over SMTP
type Sender struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// NewSender creates a new SMTP email sender
func NewSender(cfg Config, logger *zap.Logger) *Sender {
	return &Sender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

// Send delivers a single HTML email. The context deadline is honored before
// dialing; gomail itself does not take a context.
func (s *Sender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := utils.ValidateEmail(to); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("Failed to send email",
			zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Debug("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// Verify interface compliance
var _ port.EmailSender = (*Sender)(nil)

package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/pkg/utils"
)

// Config holds Twilio WhatsApp configuration
type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string // E.164, without the whatsapp: prefix
}

// Sender implements port.WhatsAppSender using the Twilio API
type Sender struct {
	client *twilio.RestClient
	from   string
	logger *zap.Logger
}

// NewSender creates a new Twilio WhatsApp sender
func NewSender(cfg Config, logger *zap.Logger) *Sender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Sender{
		client: client,
		from:   cfg.FromNumber,
		logger: logger,
	}
}

// Send delivers one WhatsApp text message
func (s *Sender) Send(ctx context.Context, phoneNumber, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := utils.ValidatePhoneNumber(phoneNumber); err != nil {
		return err
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(withWhatsAppPrefix(s.from))
	params.SetTo(withWhatsAppPrefix(phoneNumber))
	params.SetBody(message)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		s.logger.Error("Failed to send WhatsApp message",
			zap.String("to", phoneNumber), zap.Error(err))
		return fmt.Errorf("failed to send whatsapp message: %w", err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	s.logger.Debug("WhatsApp message sent", zap.String("to", phoneNumber), zap.String("sid", sid))
	return nil
}

func withWhatsAppPrefix(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// Verify interface compliance
var _ port.WhatsAppSender = (*Sender)(nil)

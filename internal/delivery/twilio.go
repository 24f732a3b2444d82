package delivery

import (
	"context"
	"errors"
	"strings"

	"github.com/shorttrack/apiserver/config"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender sends text messages through the Twilio Messages API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender constructs a sender from config.
func NewTwilioSender(cfg config.TwilioConfig) (*TwilioSender, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("twilio account sid and auth token are required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("twilio sender number is required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{client: client, from: cfg.From}, nil
}

// SendSMS implements SMSSender.
func (t *TwilioSender) SendSMS(ctx context.Context, msg SMS) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(t.from)
	params.SetBody(msg.Body)

	_, err := t.client.Api.CreateMessage(params)
	return err
}

package delivery

import (
	"fmt"

	"github.com/shorttrack/apiserver/config"
)

// Channels builds the senders that talk to SMTP and Twilio directly.
// Channels that are not configured come back nil.
func Channels(cfg config.Config) (Mailer, SMSSender, error) {
	var (
		mailer Mailer
		sms    SMSSender
	)
	if cfg.SMTPEnabled() {
		m, err := NewSMTPMailer(cfg.SMTP)
		if err != nil {
			return nil, nil, fmt.Errorf("smtp: %w", err)
		}
		mailer = m
	}
	if cfg.SMSEnabled() {
		s, err := NewTwilioSender(cfg.Twilio)
		if err != nil {
			return nil, nil, fmt.Errorf("twilio: %w", err)
		}
		sms = s
	}
	return mailer, sms, nil
}

// Queued puts a publisher in front of every configured channel, so sends
// return once the broker accepts the job and a Worker performs them.
// Unconfigured channels stay nil and keep reporting undelivered.
func Queued(mailer Mailer, sms SMSSender, publisher Publisher, channel string) (Mailer, SMSSender) {
	queue := NewQueueSender(publisher, channel)
	if mailer != nil {
		mailer = queue
	}
	if sms != nil {
		sms = queue
	}
	return mailer, sms
}

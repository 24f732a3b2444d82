// Package delivery sends email and SMS messages on behalf of the auth flows.
//
// A Gateway reports the outcome of every send as a Receipt. A channel that is
// not configured yields an undelivered receipt and no error; callers decide
// what to do with the message in that case.
package delivery

import (
	"context"
	"errors"
	"strings"
)

// Receipt is the outcome of a send.
type Receipt struct {
	Delivered bool
}

// Email is an outbound HTML email.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// SMS is an outbound text message.
type SMS struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Mailer sends emails.
type Mailer interface {
	SendEmail(ctx context.Context, msg Email) error
}

// SMSSender sends text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, msg SMS) error
}

var errMissingRecipient = errors.New("delivery: recipient is required")

// Gateway routes messages to the configured channels.
type Gateway struct {
	mailer Mailer
	sms    SMSSender
}

// NewGateway builds a Gateway. Either channel may be nil, which marks it as
// not configured.
func NewGateway(mailer Mailer, sms SMSSender) *Gateway {
	return &Gateway{mailer: mailer, sms: sms}
}

// SendEmail delivers an email, or reports it undelivered when email is not
// configured.
func (g *Gateway) SendEmail(ctx context.Context, to, subject, html string) (Receipt, error) {
	if strings.TrimSpace(to) == "" {
		return Receipt{}, errMissingRecipient
	}
	if g == nil || g.mailer == nil {
		return Receipt{}, nil
	}
	if err := g.mailer.SendEmail(ctx, Email{To: to, Subject: subject, HTML: html}); err != nil {
		return Receipt{}, err
	}
	return Receipt{Delivered: true}, nil
}

// SendSMS delivers a text message, or reports it undelivered when SMS is not
// configured.
func (g *Gateway) SendSMS(ctx context.Context, to, body string) (Receipt, error) {
	if strings.TrimSpace(to) == "" {
		return Receipt{}, errMissingRecipient
	}
	if g == nil || g.sms == nil {
		return Receipt{}, nil
	}
	if err := g.sms.SendSMS(ctx, SMS{To: to, Body: body}); err != nil {
		return Receipt{}, err
	}
	return Receipt{Delivered: true}, nil
}

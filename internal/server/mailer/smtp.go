package mailer

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// dialer is the part of *gomail.Dialer used here.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers emails over SMTP with a plain-text body and an HTML
// alternative.
type SMTPSender struct {
	renderer *Renderer
	dialer   dialer
}

func NewSMTPSender(renderer *Renderer, host string, port int, username, password string) *SMTPSender {
	return &SMTPSender{
		renderer: renderer,
		dialer:   gomail.NewDialer(host, port, username, password),
	}
}

func newMessage(e *Email) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", e.From)
	msg.SetHeader("To", e.To)
	msg.SetHeader("Subject", e.Subject)
	msg.SetBody("text/plain", e.Text)
	if e.HTML != "" {
		msg.AddAlternative("text/html", e.HTML)
	}
	return msg
}

func (s *SMTPSender) Send(ctx context.Context, template string, data Context, to string) error {
	if to == "" {
		return fmt.Errorf("no recipient specified")
	}
	e, err := s.renderer.Render(template, data, to)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(newMessage(e)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

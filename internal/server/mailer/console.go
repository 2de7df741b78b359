package mailer

import (
	"context"

	"github.com/dmitrijs2005/dlogr/internal/logging"
)

// ConsoleSender writes rendered emails to the log instead of sending them.
// It is the development backend.
type ConsoleSender struct {
	renderer *Renderer
	logger   logging.Logger
}

func NewConsoleSender(renderer *Renderer, logger logging.Logger) *ConsoleSender {
	return &ConsoleSender{renderer: renderer, logger: logger.With("module", "mailer")}
}

func (s *ConsoleSender) Send(ctx context.Context, template string, data Context, to string) error {
	e, err := s.renderer.Render(template, data, to)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "email", "from", e.From, "to", e.To, "subject", e.Subject, "body", e.Text)
	return nil
}

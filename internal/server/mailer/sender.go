package mailer

import (
	"fmt"

	"github.com/dmitrijs2005/dlogr/internal/logging"
	"github.com/dmitrijs2005/dlogr/internal/server/config"
)

const (
	BackendSMTP    = "smtp"
	BackendConsole = "console"
)

// NewSender builds the sender named by cfg.EmailBackend.
func NewSender(cfg *config.Config, logger logging.Logger) (Sender, error) {
	renderer, err := NewRenderer(cfg.DefaultFromEmail, cfg.EmailSubjectPrefix)
	if err != nil {
		return nil, err
	}
	switch cfg.EmailBackend {
	case BackendSMTP:
		return NewSMTPSender(renderer, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword), nil
	case BackendConsole, "":
		return NewConsoleSender(renderer, logger), nil
	default:
		return nil, fmt.Errorf("unknown email backend %q", cfg.EmailBackend)
	}
}

// Package emailsvc holds the transports able to deliver a core.EmailMessage.
package emailsvc

import (
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

var (
	ErrNoRecipients  = errors.New("email has no recipients")
	ErrNoContent     = errors.New("email has no content")
	ErrNotConfigured = errors.New("email transport is not configured")
)

// New returns the transport selected by conf.Mail.Transport.
func New(conf *core.Config, logger core.Logger) (core.EmailService, error) {
	switch conf.Mail.Transport {
	case "smtp":
		svc := NewSMTPService(conf)
		if !svc.Configured() {
			return nil, errors.Wrap(ErrNotConfigured, "smtp: set mail.smtp.username and mail.smtp.password")
		}
		return svc, nil
	case "sendgrid":
		if conf.Mail.SendgridApiKey == "" {
			return nil, errors.Wrap(ErrNotConfigured, "sendgrid: set mail.sendgridApiKey")
		}
		return NewSendgridService(conf, logger), nil
	case "console", "":
		return NewConsoleService(conf, os.Stdout), nil
	default:
		return nil, errors.Errorf("unknown mail transport %q", conf.Mail.Transport)
	}
}

// prepare renders msg when needed and checks it can be sent.
func prepare(msg *core.EmailMessage, appName string) error {
	if !msg.HasRecipients() {
		return ErrNoRecipients
	}
	if !msg.HasContent() {
		if err := msg.Render(appName); err != nil {
			return errors.Wrap(err, "rendering email")
		}
	}
	if !msg.HasContent() {
		return ErrNoContent
	}
	return nil
}

package emailsvc

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"

	"github.com/trezcool/gradebook/core"
)

// placeholder credentials shipped in sample configuration files
var placeholderValues = []string{"", "your_email@gmail.com", "your_app_password", "changeme"}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPService delivers messages over SMTP with STARTTLS.
type SMTPService struct {
	appName    string
	from       string
	fromName   string
	subjPrefix string
	conf       core.SMTPConfig
	dialer     dialer
}

var _ core.EmailService = (*SMTPService)(nil)

func NewSMTPService(conf *core.Config) *SMTPService {
	name, addr := conf.DefaultFromEmail()
	smtp := conf.Mail.SMTP
	return &SMTPService{
		appName:    conf.AppName,
		from:       addr,
		fromName:   name,
		subjPrefix: "[" + conf.AppName + "] ",
		conf:       smtp,
		dialer:     gomail.NewDialer(smtp.Host, smtp.Port, smtp.Username, smtp.Password),
	}
}

// Configured reports whether real credentials were provided.
func (svc *SMTPService) Configured() bool {
	if svc.conf.Host == "" || svc.conf.Port == 0 || svc.from == "" {
		return false
	}
	for _, p := range placeholderValues {
		if strings.EqualFold(svc.conf.Username, p) || strings.EqualFold(svc.conf.Password, p) {
			return false
		}
	}
	return true
}

func (svc *SMTPService) SendMessage(ctx context.Context, msg *core.EmailMessage) error {
	if err := prepare(msg, svc.appName); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := svc.dialer.DialAndSend(svc.build(*msg)); err != nil {
		return errors.Wrap(err, "sending email over smtp")
	}
	return nil
}

func (svc *SMTPService) build(msg core.EmailMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", svc.from, svc.fromName)
	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, m.FormatAddress(a.Address, a.Name))
	}
	m.SetHeader("To", to...)
	m.SetHeader("Subject", svc.subjPrefix+msg.Subject)
	if msg.TextContent != "" {
		m.SetBody("text/plain", msg.TextContent)
		if msg.HTMLContent != "" {
			m.AddAlternative("text/html", msg.HTMLContent)
		}
	} else {
		m.SetBody("text/html", msg.HTMLContent)
	}
	return m
}

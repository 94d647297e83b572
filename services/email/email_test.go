package emailsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/trezcool/gradebook/core"
)

func testConf() *core.Config {
	conf := core.NewTestConfig()
	conf.AppName = "Test School"
	conf.Mail.FromEmail = "office@school.test"
	return conf
}

func newMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:      []mail.Address{{Name: "ANA", Address: "ana@school.test"}},
		Subject: "Your grade report",
		BodyStr: "Grade: 7.00",
	}
}

func TestConsoleService_SendMessage(t *testing.T) {
	var buf bytes.Buffer
	svc := NewConsoleService(testConf(), &buf)

	tests := []struct {
		name    string
		msg     *core.EmailMessage
		wantErr error
	}{
		{name: "no recipients", msg: &core.EmailMessage{BodyStr: "hi"}, wantErr: ErrNoRecipients},
		{name: "no content", msg: &core.EmailMessage{To: []mail.Address{{Address: "a@b.c"}}}, wantErr: ErrNoContent},
		{name: "plain body", msg: newMessage()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.SendMessage(context.Background(), tt.msg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	require.Len(t, svc.Sent(), 1)
	out := buf.String()
	assert.Contains(t, out, `From: "Test School" <office@school.test>`)
	assert.Contains(t, out, "Subject: [Test School] Your grade report")
	assert.Contains(t, out, `To: "ANA" <ana@school.test>`)
	assert.Contains(t, out, "multipart/alternative; boundary=")
	assert.Contains(t, out, "Grade: 7.00")
	assert.NotContains(t, out, "text/html")
}

func TestConsoleService_RendersTemplates(t *testing.T) {
	var buf bytes.Buffer
	svc := NewConsoleService(testConf(), &buf)
	msg := &core.EmailMessage{
		To:           []mail.Address{{Address: "ana@school.test"}},
		Subject:      "report",
		TemplateName: "grade_report",
		TemplateData: map[string]interface{}{
			"Name": "ANA", "Grade": "7.00", "Status": "PASSED",
			"AccountNumber": "324012345", "SentAt": "today", "Passed": true,
		},
	}
	require.NoError(t, svc.SendMessage(context.Background(), msg))
	assert.Contains(t, buf.String(), "text/html")
	assert.Contains(t, msg.TextContent, "Account number: 324012345")

	msg = &core.EmailMessage{To: []mail.Address{{Address: "ana@school.test"}}, TemplateName: "nope"}
	assert.Error(t, svc.SendMessage(context.Background(), msg))
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSMTPService(t *testing.T) {
	conf := testConf()
	conf.Mail.SMTP.Username = "office@school.test"
	conf.Mail.SMTP.Password = "your_app_password"
	svc := NewSMTPService(conf)
	assert.False(t, svc.Configured())

	conf.Mail.SMTP.Password = "real-secret"
	svc = NewSMTPService(conf)
	assert.True(t, svc.Configured())

	d := &fakeDialer{}
	svc.dialer = d
	require.NoError(t, svc.SendMessage(context.Background(), newMessage()))
	require.Len(t, d.sent, 1)

	var buf bytes.Buffer
	_, err := d.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Subject: [Test School] Your grade report")
	assert.Contains(t, buf.String(), "ana@school.test")

	d.err = errors.New("connection refused")
	err = svc.SendMessage(context.Background(), newMessage())
	assert.ErrorIs(t, err, d.err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.SendMessage(ctx, newMessage()), context.Canceled)
}

func TestSendgridService(t *testing.T) {
	conf := testConf()
	conf.Mail.SendgridApiKey = "SG.key"
	svc := NewSendgridService(conf, core.NopLogger{})

	var got rest.Request
	status := http.StatusAccepted
	sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
		got = req
		return &rest.Response{StatusCode: status}, nil
	}
	defer func() { sendgridAPIFunc = sendgrid.API }()

	require.NoError(t, svc.SendMessage(context.Background(), newMessage()))
	assert.Equal(t, rest.Post, got.Method)
	assert.True(t, strings.HasSuffix(got.BaseURL, endpoint))

	var body struct {
		Personalizations []struct {
			Subject string `json:"subject"`
		} `json:"personalizations"`
		Content []struct {
			Type string `json:"type"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(got.Body, &body))
	require.Len(t, body.Personalizations, 1)
	assert.Equal(t, "[Test School] Your grade report", body.Personalizations[0].Subject)
	require.Len(t, body.Content, 1)
	assert.Equal(t, "text/plain", body.Content[0].Type)

	status = http.StatusUnauthorized
	assert.Error(t, svc.SendMessage(context.Background(), newMessage()))
}

func TestNew(t *testing.T) {
	conf := testConf()

	svc, err := New(conf, core.NopLogger{})
	require.NoError(t, err)
	assert.IsType(t, &ConsoleService{}, svc)

	conf.Mail.Transport = "smtp"
	_, err = New(conf, core.NopLogger{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	conf.Mail.Transport = "sendgrid"
	_, err = New(conf, core.NopLogger{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	conf.Mail.SendgridApiKey = "SG.key"
	svc, err = New(conf, core.NopLogger{})
	require.NoError(t, err)
	assert.IsType(t, &SendgridService{}, svc)

	conf.Mail.Transport = "pigeon"
	_, err = New(conf, core.NopLogger{})
	assert.Error(t, err)
}

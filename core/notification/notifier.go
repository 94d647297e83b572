// Package notification mails each student their grade report.
package notification

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/student"
)

const gradeReportTemplate = "grade_report"

var (
	ErrNoEmail = errors.New("student has no valid email address")

	nowFunc   = time.Now // mockable
	sleepFunc = sleepCtx // mockable
)

type Options struct {
	AppName string
	// SendDelay paces consecutive sends of a batch.
	SendDelay time.Duration
}

type Notifier struct {
	mailSvc core.EmailService
	logger  core.Logger
	opts    Options
}

func NewNotifier(mailSvc core.EmailService, logger core.Logger, opts Options) *Notifier {
	if logger == nil {
		logger = core.NopLogger{}
	}
	if opts.AppName == "" {
		opts.AppName = "Gradebook"
	}
	return &Notifier{mailSvc: mailSvc, logger: logger, opts: opts}
}

// Failure records a student whose message could not be delivered.
type Failure struct {
	Name string
	Err  error
}

type Summary struct {
	BatchID      string
	Total        int
	Sent         int
	Failed       int
	WithoutEmail int
	Failures     []Failure
}

type gradeReport struct {
	Name          string
	Grade         string
	Status        student.Status
	AccountNumber string
	SentAt        string
	Passed        bool
}

// NotifyOne sends std its grade report.
func (n *Notifier) NotifyOne(ctx context.Context, std student.Student) error {
	if !std.HasEmail() {
		return ErrNoEmail
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: std.Name, Address: std.Email}},
		Subject:      fmt.Sprintf("%s - Your grade report", n.opts.AppName),
		TemplateName: gradeReportTemplate,
		TemplateData: gradeReport{
			Name:          std.Name,
			Grade:         strconv.FormatFloat(std.Grade, 'f', 2, 64),
			Status:        std.Status,
			AccountNumber: std.AccountNumber,
			SentAt:        nowFunc().Format("02/01/2006 15:04"),
			Passed:        std.Passed(),
		},
	}
	if err := msg.Render(n.opts.AppName); err != nil {
		return errors.Wrap(err, "rendering grade report")
	}
	return n.mailSvc.SendMessage(ctx, msg)
}

// NotifyAll sends a report to every student with an email, pausing SendDelay between sends.
// A failed send is counted and the batch goes on; only cancellation of ctx stops it early.
func (n *Notifier) NotifyAll(ctx context.Context, students []student.Student) (Summary, error) {
	sum := Summary{BatchID: uuid.NewString(), Total: len(students)}
	batchLog := map[string]interface{}{"batch_id": sum.BatchID}
	n.logger.Info("grade notification batch started", batchLog, map[string]interface{}{"total": sum.Total})

	var sentOne bool
	for _, std := range students {
		if !std.HasEmail() {
			sum.WithoutEmail++
			continue
		}
		if sentOne && n.opts.SendDelay > 0 {
			if err := sleepFunc(ctx, n.opts.SendDelay); err != nil {
				return sum, err
			}
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sentOne = true

		if err := n.NotifyOne(ctx, std); err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{Name: std.Name, Err: err})
			n.logger.Error("sending grade report", err, std, batchLog)
			continue
		}
		sum.Sent++
		n.logger.Debug("grade report sent", std, batchLog)
	}

	n.logger.Info("grade notification batch done", batchLog, map[string]interface{}{
		"sent": sum.Sent, "failed": sum.Failed, "without_email": sum.WithoutEmail,
	})
	return sum, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package main

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/auth"
	"github.com/trezcool/gradebook/core/notification"
	"github.com/trezcool/gradebook/core/student"
	emailsvc "github.com/trezcool/gradebook/services/email"
	logsvc "github.com/trezcool/gradebook/services/logger"
	"github.com/trezcool/gradebook/storage/backup"
	"github.com/trezcool/gradebook/storage/database"
	inmemdb "github.com/trezcool/gradebook/storage/database/inmem"
	sqlxrepos "github.com/trezcool/gradebook/storage/database/sqlx"
	sheetstore "github.com/trezcool/gradebook/storage/sheet"
)

// app holds every service the commands and menus use.
type app struct {
	conf     *core.Config
	logger   core.Logger
	students *student.Service
	gate     *auth.Gate
	backups  *backup.Manager // nil when disabled
	mailSvc  core.EmailService
	closers  []func() error
}

func newLogger(conf *core.Config) (core.Logger, io.Closer, error) {
	var (
		out    io.Writer = io.Discard
		closer io.Closer
	)
	if conf.Log.Enabled {
		f, err := logsvc.OpenDailyFile(conf.Log.Dir, time.Now().Format("20060102"))
		if err != nil {
			return nil, nil, err
		}
		out, closer = f, f
	}
	if conf.Debug {
		out = io.MultiWriter(out, os.Stderr)
	}
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger(out), conf), closer, nil
}

// newApp wires the configured storage, backups and services.
func newApp(ctx context.Context, conf *core.Config) (*app, error) {
	a := &app{
		conf: conf,
		gate: auth.NewGate(conf.Security.AdminPassword, conf.Security.MaxLoginAttempts),
	}
	logger, logCloser, err := newLogger(conf)
	if err != nil {
		return nil, errors.Wrap(err, "setting up logs")
	}
	a.logger = logger
	if logCloser != nil {
		a.closers = append(a.closers, logCloser.Close)
	}
	if rl, ok := logger.(*logsvc.RollbarLogger); ok && conf.RollbarToken != "" {
		a.closers = append(a.closers, func() error { rl.Close(); return nil })
	}

	if a.backups, err = backup.NewFromConfig(ctx, conf, logger); err != nil {
		a.close()
		return nil, err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.students, err = student.NewService(ctx, store, student.Options{
		PassingThreshold: conf.Grades.PassingThreshold,
		Logger:           logger,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (student.Store, error) {
	switch a.conf.Storage.Driver {
	case "sheet":
		opts := sheetstore.Options{
			Lock:      a.conf.Storage.Lock,
			Threshold: a.conf.Grades.PassingThreshold,
			Logger:    a.logger,
		}
		if a.backups != nil {
			opts.Backup = a.backups
		}
		s, err := sheetstore.Open(a.conf.Storage.SheetPath, opts)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case database.DriverPostgres, database.DriverSQLite:
		db, err := database.Open(ctx, a.conf)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return sqlxrepos.NewStudentStore(db), nil
	case "memory":
		db, err := inmemdb.Open()
		if err != nil {
			return nil, err
		}
		return inmemdb.NewStudentStore(db), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", a.conf.Storage.Driver)
	}
}

// mailer builds the email transport on first use so a missing mail setup only affects sending.
func (a *app) mailer() (core.EmailService, error) {
	if a.mailSvc == nil {
		svc, err := emailsvc.New(a.conf, a.logger)
		if err != nil {
			return nil, err
		}
		a.mailSvc = svc
	}
	return a.mailSvc, nil
}

func (a *app) notifier() (*notification.Notifier, error) {
	svc, err := a.mailer()
	if err != nil {
		return nil, err
	}
	return notification.NewNotifier(svc, a.logger, notification.Options{
		AppName:   a.conf.AppName,
		SendDelay: a.conf.Mail.SendDelay,
	}), nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("closing: %v", err)
		}
	}
	a.closers = nil
}

package main

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/auth"
	"github.com/trezcool/gradebook/services/report"
	"github.com/trezcool/gradebook/storage/database"
)

type commandLine struct {
	conf *core.Config
	con  *console
	app  *app // built on first use
}

func newCommandLine(conf *core.Config, in io.Reader, out io.Writer) *commandLine {
	return &commandLine{
		conf: conf,
		con:  newConsole(in, out, conf.UI.Colors, conf.UI.ClearScreen),
	}
}

func (cli *commandLine) setup(ctx context.Context) error {
	if cli.app != nil {
		return nil
	}
	a, err := newApp(ctx, cli.conf)
	if err != nil {
		return err
	}
	cli.app = a
	return nil
}

// requireAdmin sets the app up and asks for the admin password.
func (cli *commandLine) requireAdmin(ctx context.Context) error {
	if err := cli.setup(ctx); err != nil {
		return err
	}
	ok, err := cli.con.authenticate(cli.app.gate)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrAuthFailed
	}
	return nil
}

// close saves what a failed save left behind, then releases the app.
func (cli *commandLine) close(ctx context.Context) {
	if cli.app == nil {
		return
	}
	if cli.app.students != nil && cli.app.students.Dirty() {
		cli.con.warn("Saving pending changes...")
		if err := cli.app.students.Flush(ctx); err != nil {
			cli.con.fail(err)
			cli.con.warn("Pending changes were lost.")
		}
	}
	cli.app.close()
	cli.app = nil
}

func newRootCmd(cli *commandLine) *cobra.Command {
	root := &cobra.Command{
		Use:           "gradebook",
		Short:         "Keep a group's grades, account numbers and grade reports",
		Long:          "Without a subcommand, gradebook starts the interactive menu.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.runMenu(cmd.Context())
		},
	}
	root.SetIn(cli.con.in)
	root.SetOut(cli.con.out)
	root.SetErr(cli.con.out)

	root.AddCommand(
		&cobra.Command{
			Use:   "menu",
			Short: "Start the interactive menu",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return cli.runMenu(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print the group statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := cli.setup(cmd.Context()); err != nil {
					return err
				}
				return cli.showStatistics()
			},
		},
		cli.notifyCmd(),
		cli.accountsCmd(),
		cli.emailsCmd(),
		cli.exportCmd(),
		cli.backupsCmd(),
		cli.migrateCmd(),
	)
	return root
}

func (cli *commandLine) notifyCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Email grade reports to every student, or to one with --name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cli.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			return cli.runNotify(cmd.Context(), name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "only email this student")
	return cmd
}

func (cli *commandLine) accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage account numbers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "assign",
		Short: "Assign an account number to every student lacking one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cli.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			return cli.assignAccounts(cmd.Context())
		},
	})
	return cmd
}

func (cli *commandLine) emailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emails",
		Short: "Manage student email addresses",
	}

	var domain string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Build an address from the name of every student without one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cli.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			return cli.runGenerateEmails(cmd.Context(), domain)
		},
	}
	generate.Flags().StringVar(&domain, "domain", "", "email domain, e.g. school.edu")
	_ = generate.MarkFlagRequired("domain")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List students without an email address",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := cli.requireAdmin(cmd.Context()); err != nil {
					return err
				}
				return cli.listWithoutEmail()
			},
		},
		generate,
	)
	return cmd
}

var exportKinds = map[string]report.Kind{
	"csv":         report.KindCSV,
	"stats":       report.KindStatistics,
	"credentials": report.KindCredentials,
}

func (cli *commandLine) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "export csv|stats|credentials",
		Short:     "Write a report to the reports directory",
		Long:      "Credentials hold every account number and need the admin password.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"csv", "stats", "credentials"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := exportKinds[args[0]]
			setup := cli.setup
			if kind == report.KindCredentials {
				setup = cli.requireAdmin
			}
			if err := setup(cmd.Context()); err != nil {
				return err
			}
			return cli.exportReport(kind)
		},
	}
}

func (cli *commandLine) backupsCmd() *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List spreadsheet backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cli.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			return cli.runBackups(cmd.Context(), now)
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "take a backup before listing")
	return cmd
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run database migrations (up, down, status, version, redo, reset, up-to, down-to)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.migrate(cmd.Context(), args[0], args[1:]...)
		},
	}
}

// migrate works on the database alone: the ledger cannot be loaded before its tables exist.
func (cli *commandLine) migrate(ctx context.Context, command string, args ...string) error {
	switch cli.conf.Storage.Driver {
	case database.DriverPostgres:
		if command == "up" {
			if err := database.CreateIfNotExist(ctx, cli.conf); err != nil {
				return err
			}
		}
	case database.DriverSQLite:
	default:
		return errors.Errorf("migrations need database storage, not %q", cli.conf.Storage.Driver)
	}

	db, err := database.Open(ctx, cli.conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(ctx, db, command, args...); err != nil {
		return err
	}
	cli.con.success("migrate %s: done", command)
	return nil
}

package main

import (
	"context"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/services/report"
)

// menu is a numbered list of choices; the last item always leaves the menu.
type menu struct {
	title string
	items []string
}

const (
	mainStudent = iota + 1
	mainAdmin
	mainExport
	mainExit
)

var mainMenu = menu{
	title: "Gradebook",
	items: []string{"Student access", "Admin access", "Export reports", "Exit"},
}

const (
	studentMyGrade = iota + 1
	studentStats
	studentBack
)

var studentMenu = menu{
	title: "Student access",
	items: []string{"Check my grade", "Group statistics", "Back"},
}

const (
	adminFind = iota + 1
	adminList
	adminAdd
	adminUpdateGrade
	adminDelete
	adminStats
	adminEmails
	adminAccounts
	adminNotify
	adminBackups
	adminLogs
	adminSave
	adminBack
)

var adminMenu = menu{
	title: "Admin access",
	items: []string{
		"Find a student",
		"List all students",
		"Add a student",
		"Update a grade",
		"Delete a student",
		"Group statistics",
		"Manage emails",
		"Assign missing account numbers",
		"Send grade reports by email",
		"Backups",
		"Recent log entries",
		"Save pending changes",
		"Back",
	},
}

const (
	emailsWithout = iota + 1
	emailsSet
	emailsGenerate
	emailsBack
)

var emailsMenu = menu{
	title: "Manage emails",
	items: []string{"Students without email", "Set a student's email", "Generate emails from names", "Back"},
}

const (
	exportCSV = iota + 1
	exportStats
	exportBack
)

var exportMenu = menu{
	title: "Export reports",
	items: []string{"Grades (CSV)", "Statistics (text)", "Back"},
}

// parseChoice maps an answer to a 1-based item of m.
func (m menu) parseChoice(answer string) (int, bool) {
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(m.items) {
		return 0, false
	}
	return n, true
}

// choose shows m until a valid option is picked.
func (m menu) choose(con *console) (int, error) {
	for {
		con.title(m.title)
		for i, item := range m.items {
			con.printf("%2d. %s\n", i+1, item)
		}
		answer, err := con.ask("Choose an option: ")
		if err != nil {
			return 0, err
		}
		if n, ok := m.parseChoice(answer); ok {
			return n, nil
		}
		con.warn("Invalid option %q.", answer)
	}
}

// loop runs handle for each choice until the last item is picked.
// Errors from handle are shown and the menu goes on; input errors end it.
func (m menu) loop(ctx context.Context, cli *commandLine, handle func(ctx context.Context, choice int) error) error {
	for {
		choice, err := m.choose(cli.con)
		if err != nil {
			return err
		}
		if choice == len(m.items) {
			return nil
		}
		cli.con.clearScreen()
		if err := handle(ctx, choice); err != nil {
			if isInputErr(err) {
				return err
			}
			cli.report(err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (cli *commandLine) runMenu(ctx context.Context) error {
	if err := cli.setup(ctx); err != nil {
		return err
	}
	cli.con.clearScreen()
	cli.con.success("Welcome to %s.", cli.conf.AppName)

	err := mainMenu.loop(ctx, cli, func(ctx context.Context, choice int) error {
		switch choice {
		case mainStudent:
			return studentMenu.loop(ctx, cli, cli.handleStudent)
		case mainAdmin:
			ok, err := cli.con.authenticate(cli.app.gate)
			if err != nil || !ok {
				return err
			}
			return adminMenu.loop(ctx, cli, cli.handleAdmin)
		case mainExport:
			return exportMenu.loop(ctx, cli, cli.handleExport)
		}
		return nil
	})
	if err != nil && !isInputErr(err) {
		return err
	}
	cli.con.println("Goodbye.")
	return nil
}

func (cli *commandLine) handleStudent(ctx context.Context, choice int) error {
	switch choice {
	case studentMyGrade:
		return cli.showMyGrade()
	case studentStats:
		return cli.showStatistics()
	}
	return nil
}

func (cli *commandLine) handleAdmin(ctx context.Context, choice int) error {
	switch choice {
	case adminFind:
		return cli.findStudent()
	case adminList:
		return cli.listStudents()
	case adminAdd:
		return cli.addStudent(ctx)
	case adminUpdateGrade:
		return cli.updateGrade(ctx)
	case adminDelete:
		return cli.deleteStudent(ctx)
	case adminStats:
		return cli.showStatistics()
	case adminEmails:
		return emailsMenu.loop(ctx, cli, cli.handleEmails)
	case adminAccounts:
		return cli.assignAccounts(ctx)
	case adminNotify:
		return cli.sendReports(ctx)
	case adminBackups:
		return cli.showBackups(ctx)
	case adminLogs:
		return cli.showLogs()
	case adminSave:
		return cli.saveChanges(ctx)
	}
	return nil
}

func (cli *commandLine) handleEmails(ctx context.Context, choice int) error {
	switch choice {
	case emailsWithout:
		return cli.listWithoutEmail()
	case emailsSet:
		return cli.setEmail(ctx)
	case emailsGenerate:
		return cli.generateEmails(ctx)
	}
	return nil
}

func (cli *commandLine) handleExport(_ context.Context, choice int) error {
	switch choice {
	case exportCSV:
		return cli.exportReport(report.KindCSV)
	case exportStats:
		return cli.exportReport(report.KindStatistics)
	}
	return nil
}

// isInputErr reports whether err means the session cannot go on.
func isInputErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, context.Canceled)
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/student"
	logsvc "github.com/trezcool/gradebook/services/logger"
	"github.com/trezcool/gradebook/services/report"
)

const (
	maxSuggestions = 3
	logTailLines   = 20
)

var nowFunc = time.Now // mockable

// report shows err to the user. Unsaved changes get a warning instead of an error.
func (cli *commandLine) report(err error) {
	var perr *student.PersistError
	var verr *core.ValidationError
	switch {
	case errors.As(err, &perr):
		cli.con.warn("The change was applied but could not be saved (%v).", perr.Err)
		cli.con.warn("Use \"Save pending changes\" to retry.")
	case errors.As(err, &verr):
		cli.con.fail(verr)
	default:
		cli.con.fail(err)
	}
}

// applied is true when err is nil or only reports a failed save.
func applied(err error) bool {
	return err == nil || student.IsPersist(err)
}

func (cli *commandLine) printStudent(std student.Student, private bool) {
	tw := tabwriter.NewWriter(cli.con.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Name:\t%s\n", std.Name)
	_, _ = fmt.Fprintf(tw, "Grade:\t%.2f\n", std.Grade)
	status := cli.con.color.Green(string(std.Status))
	if !std.Passed() {
		status = cli.con.color.Red(string(std.Status))
	}
	_, _ = fmt.Fprintf(tw, "Status:\t%s\n", status)
	if private {
		_, _ = fmt.Fprintf(tw, "Account number:\t%s\n", orDash(std.AccountNumber))
		_, _ = fmt.Fprintf(tw, "Email:\t%s\n", orDash(std.Email))
	}
	_ = tw.Flush()
}

func (cli *commandLine) printTable(students []student.Student) {
	tw := tabwriter.NewWriter(cli.con.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tGRADE\tSTATUS\tACCOUNT\tEMAIL")
	for _, s := range students {
		_, _ = fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\t%s\n", s.Name, s.Grade, s.Status, orDash(s.AccountNumber), orDash(s.Email))
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// lookup finds a student by name, suggesting close names when there is no match.
func (cli *commandLine) lookup(name string) (student.Student, error) {
	svc := cli.app.students
	std, err := svc.FindByName(name)
	if errors.Is(err, student.ErrNotFound) {
		if names := svc.Suggest(name, maxSuggestions); len(names) > 0 {
			cli.con.warn("Did you mean: %s?", strings.Join(names, ", "))
		}
	}
	return std, err
}

func (cli *commandLine) askName() (string, error) {
	name, err := cli.con.ask("Student name: ")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(name) == "" {
		return "", errors.New("a name is required")
	}
	return name, nil
}

func (cli *commandLine) showMyGrade() error {
	acct, err := cli.con.ask("Your account number: ")
	if err != nil {
		return err
	}
	if !student.IsAccountNumber(acct) {
		cli.con.warn("Account numbers have 9 digits and start with %s.", student.AccountPrefix)
		return nil
	}
	std, err := cli.app.students.FindByAccountNumber(acct)
	if err != nil {
		return err
	}
	cli.printStudent(std, false)
	return nil
}

func (cli *commandLine) showStatistics() error {
	stats, err := cli.app.students.Statistics()
	if err != nil {
		return err
	}
	return report.WriteStatistics(cli.con.out, stats, cli.app.students.ListAll(), nowFunc())
}

func (cli *commandLine) findStudent() error {
	name, err := cli.askName()
	if err != nil {
		return err
	}
	std, err := cli.lookup(name)
	if err != nil {
		return err
	}
	cli.printStudent(std, true)
	return nil
}

func (cli *commandLine) listStudents() error {
	students := cli.app.students.ListAll()
	if len(students) == 0 {
		return student.ErrEmptyLedger
	}
	cli.printTable(students)
	cli.con.println()
	cli.con.printf("%d student(s).\n", len(students))
	return nil
}

func (cli *commandLine) addStudent(ctx context.Context) error {
	name, err := cli.askName()
	if err != nil {
		return err
	}
	if _, err := cli.app.students.FindByName(name); err == nil {
		return student.ErrDuplicateName
	}
	grade, err := cli.con.askGrade("Grade (0-10): ")
	if err != nil {
		return err
	}
	email, err := cli.con.ask("Email (optional): ")
	if err != nil {
		return err
	}

	std, err := cli.app.students.Add(ctx, student.NewStudent{Name: name, Grade: grade, Email: email})
	if !applied(err) {
		return err
	}
	cli.con.success("%s added with account number %s.", std.Name, std.AccountNumber)
	return err
}

func (cli *commandLine) updateGrade(ctx context.Context) error {
	name, err := cli.askName()
	if err != nil {
		return err
	}
	std, err := cli.lookup(name)
	if err != nil {
		return err
	}
	cli.con.printf("Current grade: %.2f\n", std.Grade)
	grade, err := cli.con.askGrade("New grade (0-10): ")
	if err != nil {
		return err
	}
	std, err = cli.app.students.UpdateGrade(ctx, std.Name, grade)
	if !applied(err) {
		return err
	}
	cli.con.success("%s now has %.2f (%s).", std.Name, std.Grade, std.Status)
	return err
}

func (cli *commandLine) deleteStudent(ctx context.Context) error {
	name, err := cli.askName()
	if err != nil {
		return err
	}
	std, err := cli.lookup(name)
	if err != nil {
		return err
	}
	cli.printStudent(std, true)
	answer, err := cli.con.ask(fmt.Sprintf("Type %s to delete %s: ", student.ConfirmDelete, std.Name))
	if err != nil {
		return err
	}
	err = cli.app.students.Delete(ctx, std.Name, answer)
	if errors.Is(err, student.ErrNotConfirmed) {
		cli.con.warn("Deletion cancelled.")
		return nil
	}
	if !applied(err) {
		return err
	}
	cli.con.success("%s deleted.", std.Name)
	return err
}

func (cli *commandLine) assignAccounts(ctx context.Context) error {
	n, err := cli.app.students.AssignMissingAccounts(ctx)
	if n == 0 && err == nil {
		cli.con.println("Every student already has an account number.")
		return nil
	}
	if n > 0 {
		cli.con.success("%d account number(s) assigned.", n)
	}
	return err
}

func (cli *commandLine) listWithoutEmail() error {
	missing := cli.app.students.StudentsWithoutEmail()
	total := len(cli.app.students.ListAll())
	if len(missing) == 0 {
		cli.con.println("Every student has an email address.")
		return nil
	}
	for _, s := range missing {
		cli.con.println(" -", s.Name)
	}
	cli.con.printf("%d of %d student(s) without email.\n", len(missing), total)
	return nil
}

func (cli *commandLine) setEmail(ctx context.Context) error {
	name, err := cli.askName()
	if err != nil {
		return err
	}
	std, err := cli.lookup(name)
	if err != nil {
		return err
	}
	email, err := cli.con.ask("Email: ")
	if err != nil {
		return err
	}
	std, err = cli.app.students.SetEmail(ctx, std.Name, email)
	if !applied(err) {
		return err
	}
	cli.con.success("%s can be reached at %s.", std.Name, std.Email)
	return err
}

func (cli *commandLine) generateEmails(ctx context.Context) error {
	domain, err := cli.con.ask("Domain (e.g. school.edu): ")
	if err != nil {
		return err
	}
	return cli.runGenerateEmails(ctx, domain)
}

func (cli *commandLine) runGenerateEmails(ctx context.Context, domain string) error {
	n, err := cli.app.students.GenerateEmails(ctx, domain)
	if !applied(err) {
		return err
	}
	if n == 0 {
		cli.con.println("Every student already has an email address.")
	} else {
		cli.con.success("%d email address(es) generated.", n)
	}
	return err
}

func (cli *commandLine) sendReports(ctx context.Context) error {
	name, err := cli.con.ask("Student name (leave empty to send to everyone): ")
	if err != nil {
		return err
	}
	if name == "" {
		ok, err := cli.con.confirm(fmt.Sprintf("Send grade reports to %d student(s)?", len(cli.app.students.ListAll())))
		if err != nil || !ok {
			return err
		}
	}
	return cli.runNotify(ctx, name)
}

// runNotify emails one student by name, or everyone when name is empty.
func (cli *commandLine) runNotify(ctx context.Context, name string) error {
	n, err := cli.app.notifier()
	if err != nil {
		return err
	}
	if name != "" {
		std, err := cli.lookup(name)
		if err != nil {
			return err
		}
		if err := n.NotifyOne(ctx, std); err != nil {
			return errors.Wrapf(err, "sending to %s", std.Name)
		}
		cli.con.success("Grade report sent to %s.", std.Email)
		return nil
	}

	students := cli.app.students.ListAll()
	if len(students) == 0 {
		return student.ErrEmptyLedger
	}
	sum, err := n.NotifyAll(ctx, students)
	cli.con.printf("Batch %s: %d sent, %d failed, %d without email.\n", sum.BatchID, sum.Sent, sum.Failed, sum.WithoutEmail)
	for _, f := range sum.Failures {
		cli.con.warn(" - %s: %v", f.Name, f.Err)
	}
	return err
}

func (cli *commandLine) showBackups(ctx context.Context) error {
	return cli.runBackups(ctx, false)
}

func (cli *commandLine) runBackups(ctx context.Context, snapshot bool) error {
	m := cli.app.backups
	if m == nil {
		cli.con.println("Backups are disabled.")
		return nil
	}
	if snapshot {
		if cli.conf.Storage.Driver != "sheet" {
			return errors.New("only the spreadsheet storage can be backed up")
		}
		key, err := m.Snapshot(ctx, cli.conf.Storage.SheetPath)
		if err != nil {
			return err
		}
		cli.con.success("Backup %s created.", key)
	}
	keys, err := m.List(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		cli.con.println("No backups yet.")
		return nil
	}
	for _, k := range keys {
		cli.con.println(" -", k)
	}
	cli.con.printf("%d backup(s), keeping at most %d.\n", len(keys), m.Max)
	return nil
}

func (cli *commandLine) showLogs() error {
	if !cli.conf.Log.Enabled {
		cli.con.println("Logging to file is disabled.")
		return nil
	}
	lines, err := logsvc.Tail(cli.conf.Log.Dir, logTailLines)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		cli.con.println("No log entries.")
		return nil
	}
	for _, l := range lines {
		cli.con.println(l)
	}
	return nil
}

func (cli *commandLine) saveChanges(ctx context.Context) error {
	if !cli.app.students.Dirty() {
		cli.con.println("Nothing to save.")
		return nil
	}
	if err := cli.app.students.Flush(ctx); err != nil {
		return err
	}
	cli.con.success("Changes saved.")
	return nil
}

func (cli *commandLine) exportReport(kind report.Kind) error {
	students := cli.app.students.ListAll()
	if len(students) == 0 {
		return student.ErrEmptyLedger
	}

	var write func(io.Writer) error
	switch kind {
	case report.KindCSV:
		write = func(w io.Writer) error { return report.WriteCSV(w, students) }
	case report.KindStatistics:
		stats, err := cli.app.students.Statistics()
		if err != nil {
			return err
		}
		write = func(w io.Writer) error { return report.WriteStatistics(w, stats, students, nowFunc()) }
	case report.KindCredentials:
		write = func(w io.Writer) error { return report.WriteCredentials(w, students) }
	default:
		return errors.Errorf("unknown report %q", kind)
	}

	path, err := report.Export(cli.conf.Reports.Dir, kind, nowFunc(), write)
	if err != nil {
		return err
	}
	cli.con.success("Report written to %s.", path)
	return nil
}

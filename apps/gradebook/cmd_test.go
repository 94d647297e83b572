package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/auth"
	"github.com/trezcool/gradebook/core/student"
	emailsvc "github.com/trezcool/gradebook/services/email"
	"github.com/trezcool/gradebook/storage/backup"
	inmemdb "github.com/trezcool/gradebook/storage/database/inmem"
	sheetstore "github.com/trezcool/gradebook/storage/sheet"
	testutil "github.com/trezcool/gradebook/tests"
)

const adminPassword = "admin123"

type session struct {
	cli   *commandLine
	out   *bytes.Buffer
	mail  *bytes.Buffer
	store *inmemdb.StudentStore
}

// setup starts a CLI over an in-memory ledger holding students, reading input.
func setup(t *testing.T, input string, students ...student.NewStudent) *session {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Reports.Dir = filepath.Join(t.TempDir(), "reports")

	db, err := inmemdb.Open()
	require.NoError(t, err)
	store := inmemdb.NewStudentStore(db)
	svc := testutil.NewService(t, store, students...)

	s := &session{out: new(bytes.Buffer), mail: new(bytes.Buffer), store: store}
	s.cli = newCommandLine(conf, strings.NewReader(input), s.out)
	s.cli.app = &app{
		conf:     conf,
		logger:   core.NopLogger{},
		students: svc,
		gate:     auth.NewGate(adminPassword, conf.Security.MaxLoginAttempts),
		backups:  backup.NewManager(backup.NewMemoryTarget(), conf.Backup.Max, nil),
		mailSvc:  emailsvc.NewConsoleService(conf, s.mail),
	}
	return s
}

func lines(answers ...string) string {
	return strings.Join(answers, "\n") + "\n"
}

type cliTest struct {
	name     string
	args     []string // without program name
	input    string
	wantErr  error
	wantOut  []string
	students []student.NewStudent
}

func runCLITests(t *testing.T, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup(t, tt.input, tt.students...)
			cmd := newRootCmd(s.cli)
			cmd.SetArgs(append([]string{}, tt.args...)) // never fall back to os.Args
			err := cmd.ExecuteContext(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			for _, want := range tt.wantOut {
				assert.Contains(t, s.out.String(), want)
			}
		})
	}
}

var (
	ana = student.NewStudent{Name: "Ana", Grade: 7.5, AccountNumber: "324011111", Email: "ana@school.test"}
	bob = student.NewStudent{Name: "Bob", Grade: 4, AccountNumber: "324022222"}
)

func TestMenu_parseChoice(t *testing.T) {
	tests := []struct {
		answer string
		want   int
		ok     bool
	}{
		{"1", mainStudent, true},
		{"4", mainExit, true},
		{"0", 0, false},
		{"5", 0, false},
		{"two", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := mainMenu.parseChoice(tt.answer)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseChoice(%q) = %d, %v; want %d, %v", tt.answer, got, ok, tt.want, tt.ok)
		}
	}
	assert.Len(t, adminMenu.items, adminBack)
	assert.Len(t, studentMenu.items, studentBack)
	assert.Len(t, emailsMenu.items, emailsBack)
	assert.Len(t, exportMenu.items, exportBack)
}

func TestParseGrade(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "7.5", want: 7.5},
		{in: " 8,25 ", want: 8.25},
		{in: "10", want: 10},
		{in: "ten", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseGrade(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseGrade(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseGrade(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func Test_commandLine_menu(t *testing.T) {
	runCLITests(t, []cliTest{
		{
			name:    "exit",
			input:   lines("9", "4"),
			wantOut: []string{"Welcome to Gradebook.", `Invalid option "9".`, "Goodbye."},
		},
		{
			name:    "input closed",
			args:    []string{"menu"},
			input:   "",
			wantOut: []string{"Goodbye."},
		},
		{
			name:     "student checks a grade",
			input:    lines("1", "1", "324011111", "1", "12345", "1", "324099999", "3", "4"),
			students: []student.NewStudent{ana, bob},
			wantOut: []string{
				"ANA", "7.50", "PASSED",
				"Account numbers have 9 digits and start with 3240.",
				"Error: student not found",
			},
		},
		{
			name:     "student sees statistics",
			input:    lines("1", "2", "3", "4"),
			students: []student.NewStudent{ana, bob},
			wantOut:  []string{"Students: 2", "Passed: 1 (50.0%)"},
		},
		{
			name:    "statistics of an empty group",
			input:   lines("1", "2", "3", "4"),
			wantOut: []string{"Error: no students registered"},
		},
		{
			name:    "wrong admin password",
			input:   lines("2", "a", "b", "c", "4"),
			wantOut: []string{"2 attempt(s) left", "1 attempt(s) left", "Access denied.", "Goodbye."},
		},
		{
			name:     "admin adds and lists",
			input:    lines("2", adminPassword, "3", "zoe", "9,5", "", "3", "Ana", "2", "13", "4"),
			students: []student.NewStudent{ana},
			wantOut: []string{
				"ZOE added with account number 3240",
				"Error: a student with this name already exists",
				"ZOE", "9.50", "2 student(s).",
			},
		},
		{
			name:     "admin adds an invalid grade",
			input:    lines("2", adminPassword, "3", "zoe", "11", "", "13", "4"),
			wantOut:  []string{"Error: grade must be between 0 and 10"},
			students: []student.NewStudent{ana},
		},
		{
			name:     "admin updates a grade",
			input:    lines("2", adminPassword, "4", "bob", "6", "13", "4"),
			students: []student.NewStudent{bob},
			wantOut:  []string{"Current grade: 4.00", "BOB now has 6.00 (PASSED)."},
		},
		{
			name:     "admin deletes",
			input:    lines("2", adminPassword, "5", "anna", "5", "ana", "no", "5", "ana", "yes", "1", "ana", "13", "4"),
			students: []student.NewStudent{ana, bob},
			wantOut: []string{
				"Did you mean: ANA?",
				"Deletion cancelled.",
				"ANA deleted.",
				"Error: student not found",
			},
		},
		{
			name:     "admin manages emails",
			input:    lines("2", adminPassword, "7", "1", "2", "bob", "not-an-email", "3", "School.Test", "1", "4", "13", "4"),
			students: []student.NewStudent{ana, bob},
			wantOut: []string{
				"1 of 2 student(s) without email.",
				"Error: invalid email address",
				"1 email address(es) generated.",
				"Every student has an email address.",
			},
		},
		{
			name:     "admin sends one report",
			input:    lines("2", adminPassword, "9", "ana", "13", "4"),
			students: []student.NewStudent{ana},
			wantOut:  []string{"Grade report sent to ana@school.test."},
		},
		{
			name:     "admin sees backups and logs",
			input:    lines("2", adminPassword, "10", "11", "12", "13", "4"),
			students: []student.NewStudent{ana},
			wantOut:  []string{"No backups yet.", "Logging to file is disabled.", "Nothing to save."},
		},
	})
}

func Test_commandLine_unsavedChanges(t *testing.T) {
	ctx := context.Background()
	s := setup(t, lines("2", adminPassword, "3", "zoe", "8", "", "12", "13", "4"), ana)
	s.store.FailSaves = true

	cmd := newRootCmd(s.cli)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.ExecuteContext(ctx))
	out := s.out.String()
	assert.Contains(t, out, "ZOE added with account number")
	assert.Equal(t, 2, strings.Count(out, "could not be saved"), "the add and the manual save both fail")
	assert.True(t, s.cli.app.students.Dirty())

	saves := s.store.Saves()
	s.store.FailSaves = false
	s.cli.close(ctx)
	assert.Nil(t, s.cli.app)
	assert.Equal(t, saves+1, s.store.Saves())

	l, err := s.store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, l.Students, 2)
}

func Test_commandLine_commands(t *testing.T) {
	runCLITests(t, []cliTest{
		{
			name:     "stats",
			args:     []string{"stats"},
			students: []student.NewStudent{ana, bob},
			wantOut:  []string{"Mean grade: 5.75"},
		},
		{
			name:     "notify everyone",
			args:     []string{"notify"},
			input:    lines(adminPassword),
			students: []student.NewStudent{ana, bob},
			wantOut:  []string{"1 sent, 0 failed, 1 without email."},
		},
		{
			name:     "notify denied",
			args:     []string{"notify"},
			input:    lines("x", "y", "z"),
			students: []student.NewStudent{ana},
			wantErr:  auth.ErrAuthFailed,
		},
		{
			name:     "assign accounts",
			args:     []string{"accounts", "assign"},
			input:    lines(adminPassword),
			students: []student.NewStudent{{Name: "Carl", Grade: 5}},
			wantOut:  []string{"Every student already has an account number."},
		},
		{
			name:     "generate emails",
			args:     []string{"emails", "generate", "--domain", "school.test"},
			input:    lines(adminPassword),
			students: []student.NewStudent{bob},
			wantOut:  []string{"1 email address(es) generated."},
		},
		{
			name:     "generate emails with a bad domain",
			args:     []string{"emails", "generate", "--domain", "nodot"},
			input:    lines(adminPassword),
			students: []student.NewStudent{bob},
			wantErr:  student.ErrInvalidDomain,
		},
		{
			name:     "list missing emails",
			args:     []string{"emails", "list"},
			input:    lines(adminPassword),
			students: []student.NewStudent{ana, bob},
			wantOut:  []string{" - BOB", "1 of 2 student(s) without email."},
		},
		{
			name:     "backups",
			args:     []string{"backups"},
			input:    lines(adminPassword),
			wantOut:  []string{"No backups yet."},
			students: []student.NewStudent{ana},
		},
	})
}

func Test_commandLine_notifyOneWithoutEmail(t *testing.T) {
	s := setup(t, lines(adminPassword), bob)
	cmd := newRootCmd(s.cli)
	cmd.SetArgs([]string{"notify", "--name", "bob"})
	err := cmd.ExecuteContext(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "student has no valid email address")
	assert.Empty(t, s.mail.String())
}

func Test_commandLine_export(t *testing.T) {
	nowFunc = func() time.Time { return time.Date(2024, 6, 1, 14, 5, 9, 0, time.UTC) }
	defer func() { nowFunc = time.Now }()

	tests := []struct {
		name     string
		args     []string
		input    string
		wantFile string
		wantErr  bool
	}{
		{name: "csv", args: []string{"export", "csv"}, wantFile: "report_20240601_140509.csv"},
		{name: "stats", args: []string{"export", "stats"}, wantFile: "statistics_20240601_140509.txt"},
		{name: "credentials", args: []string{"export", "credentials"}, input: lines(adminPassword), wantFile: "credentials_20240601_140509.txt"},
		{name: "credentials denied", args: []string{"export", "credentials"}, input: lines("a", "b", "c"), wantErr: true},
		{name: "credentials without input", args: []string{"export", "credentials"}, wantErr: true},
		{name: "unknown kind", args: []string{"export", "pdf"}, wantErr: true},
		{name: "no kind", args: []string{"export"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup(t, tt.input, ana, bob)
			cmd := newRootCmd(s.cli)
			cmd.SetArgs(tt.args)
			err := cmd.ExecuteContext(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			path := filepath.Join(s.cli.conf.Reports.Dir, tt.wantFile)
			assert.Contains(t, s.out.String(), path)
			_, err = os.Stat(path)
			assert.NoError(t, err)
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	var out bytes.Buffer
	cli := newCommandLine(conf, strings.NewReader(""), &out)

	cmd := newRootCmd(cli)
	cmd.SetArgs([]string{"migrate", "up"})
	assert.Error(t, cmd.ExecuteContext(ctx), "memory storage has no migrations")

	conf.Storage.Driver = "sqlite"
	conf.Database.Path = filepath.Join(t.TempDir(), "gradebook.db")
	cmd = newRootCmd(cli)
	cmd.SetArgs([]string{"migrate", "up"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "migrate up: done")

	// the ledger now loads from the migrated tables
	cmd = newRootCmd(cli)
	cmd.SetArgs([]string{"stats"})
	assert.ErrorIs(t, cmd.ExecuteContext(ctx), student.ErrEmptyLedger)
	cli.close(ctx)
}

func TestNewApp(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()

	a, err := newApp(ctx, conf)
	require.NoError(t, err)
	assert.NotNil(t, a.students)
	assert.NotNil(t, a.backups)
	_, err = a.notifier()
	assert.NoError(t, err)
	a.close()

	conf.Mail.Transport = "smtp"
	a, err = newApp(ctx, conf)
	require.NoError(t, err, "mail setup is only checked when sending")
	_, err = a.notifier()
	assert.ErrorIs(t, err, emailsvc.ErrNotConfigured)
	a.close()

	conf.Storage.Driver = "sheet"
	conf.Storage.SheetPath = filepath.Join(t.TempDir(), "missing.xlsx")
	_, err = newApp(ctx, conf)
	assert.True(t, student.IsLoad(err))
}

func TestNewApp_SheetLock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "grupo.xlsx")
	seed, err := sheetstore.Open(path, sheetstore.Options{})
	require.NoError(t, err)
	testutil.SeedLedger(t, seed, student.Student{Name: "ANA", Grade: 7})

	conf := core.NewTestConfig()
	conf.Storage.Driver = "sheet"
	conf.Storage.SheetPath = path
	conf.Storage.Lock = true
	conf.Log.Enabled = true
	conf.Log.Dir = filepath.Join(t.TempDir(), "logs")

	first, err := newApp(ctx, conf)
	require.NoError(t, err)
	ana, err := first.students.FindByName("ana")
	require.NoError(t, err)
	assert.Equal(t, student.StatusPassed, ana.Status)

	_, err = newApp(ctx, conf)
	assert.ErrorIs(t, err, sheetstore.ErrLocked)

	first.close()
	second, err := newApp(ctx, conf)
	require.NoError(t, err)
	second.close()

	logs, err := filepath.Glob(filepath.Join(conf.Log.Dir, "gradebook_*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

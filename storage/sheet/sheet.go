// Package sheetstore keeps the ledger in an .xlsx workbook.
package sheetstore

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/student"
)

const (
	HeaderName    = "NOMBRE DE ALUMNO"
	HeaderGrade   = "CALIFICACION"
	HeaderStatus  = "ESTADO"
	HeaderAccount = "NUMERO DE CUENTA"
	HeaderEmail   = "EMAIL"

	defaultSheet = "Sheet1"
	retiredSheet = "_RETIRED"
)

var (
	ErrLocked    = errors.New("the grade sheet is open in another gradebook process")
	ErrNoHeader  = errors.New("header row is missing")
	errBadGrade  = errors.New("grade is not a number")
	headerLayout = []string{HeaderName, HeaderGrade, HeaderStatus, HeaderAccount, HeaderEmail}
)

// Snapshotter copies the current file aside before it is overwritten.
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) (string, error)
}

type Options struct {
	// Lock takes an advisory lock on <path>.lock until Close.
	Lock      bool
	Backup    Snapshotter
	Threshold float64
	Logger    core.Logger
}

type Store struct {
	mu        sync.Mutex
	path      string
	opts      Options
	lock      *flock.Flock
	sheetName string
}

var _ student.Store = (*Store)(nil)

func Open(path string, opts Options) (*Store, error) {
	if opts.Threshold <= 0 {
		opts.Threshold = student.DefaultPassingThreshold
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}
	s := &Store{path: path, opts: opts, sheetName: defaultSheet}
	if opts.Lock {
		s.lock = flock.New(path + ".lock")
		locked, err := s.lock.TryLock()
		if err != nil {
			return nil, errors.Wrap(err, "locking grade sheet")
		}
		if !locked {
			return nil, ErrLocked
		}
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Close releases the lock.
func (s *Store) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

type columns struct {
	name, grade, account, email int // 1-based
}

// resolveColumns matches header names exactly and falls back to the fixed layout.
func resolveColumns(header []string) columns {
	cols := columns{name: 1, grade: 2, account: 4, email: 5}
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case HeaderName:
			cols.name = i + 1
		case HeaderGrade:
			cols.grade = i + 1
		case HeaderAccount:
			cols.account = i + 1
		case HeaderEmail:
			cols.email = i + 1
		}
	}
	return cols
}

func cell(row []string, col int) string {
	if col-1 < len(row) {
		return strings.TrimSpace(row[col-1])
	}
	return ""
}

func (s *Store) loadErr(err error) error {
	return &student.LoadError{Source: s.path, Err: err}
}

func (s *Store) Load(ctx context.Context) (*student.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, s.loadErr(err)
	}
	defer func() { _ = f.Close() }()

	s.sheetName = f.GetSheetName(f.GetActiveSheetIndex())
	if s.sheetName == "" || s.sheetName == retiredSheet {
		s.sheetName = f.GetSheetName(0)
	}
	rows, err := f.GetRows(s.sheetName)
	if err != nil {
		return nil, s.loadErr(errors.Wrapf(err, "reading sheet %q", s.sheetName))
	}
	if len(rows) == 0 || strings.TrimSpace(strings.Join(rows[0], "")) == "" {
		return nil, s.loadErr(ErrNoHeader)
	}

	cols := resolveColumns(rows[0])
	ledger := new(student.Ledger)
	nameRows := make(map[string]int)
	acctRows := make(map[string]int)
	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rowNum := i + 2
		name := student.CanonicalName(cell(row, cols.name))
		if name == "" {
			continue
		}
		grade, err := s.readGrade(f, cols.grade, rowNum)
		if err != nil {
			return nil, s.loadErr(errors.Wrapf(err, "row %d (%s)", rowNum, name))
		}
		if prev, dup := nameRows[name]; dup {
			return nil, s.loadErr(errors.Wrapf(student.ErrDuplicateRow, "rows %d and %d: name %s", prev, rowNum, name))
		}
		nameRows[name] = rowNum
		acct := cell(row, cols.account)
		if acct != "" {
			if prev, dup := acctRows[acct]; dup {
				return nil, s.loadErr(errors.Wrapf(student.ErrDuplicateRow, "rows %d and %d: account %s", prev, rowNum, acct))
			}
			acctRows[acct] = rowNum
		}
		ledger.Students = append(ledger.Students, student.Student{
			Name:          name,
			Grade:         grade,
			AccountNumber: acct,
			Email:         cell(row, cols.email),
		})
	}

	if idx, _ := f.GetSheetIndex(retiredSheet); idx >= 0 {
		retired, err := f.GetCols(retiredSheet)
		if err != nil {
			return nil, s.loadErr(errors.Wrap(err, "reading retired accounts"))
		}
		if len(retired) > 0 {
			for _, acct := range retired[0] {
				if acct = strings.TrimSpace(acct); acct != "" {
					ledger.Retired = append(ledger.Retired, acct)
				}
			}
		}
	}

	s.opts.Logger.Debug("grade sheet loaded", map[string]interface{}{"path": s.path, "students": len(ledger.Students)})
	return ledger, nil
}

// readGrade evaluates formula cells; an empty cell counts as 0.
func (s *Store) readGrade(f *excelize.File, col, row int) (float64, error) {
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return 0, err
	}
	formula, err := f.GetCellFormula(s.sheetName, ref)
	if err != nil {
		return 0, err
	}
	var raw string
	if formula != "" {
		if raw, err = f.CalcCellValue(s.sheetName, ref); err != nil {
			return 0, errors.Wrapf(err, "evaluating %s", ref)
		}
	} else if raw, err = f.GetCellValue(s.sheetName, ref, excelize.Options{RawCellValue: true}); err != nil {
		return 0, err
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	grade, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil {
		return 0, errors.Wrapf(errBadGrade, "%s = %q", ref, raw)
	}
	return grade, nil
}

// Save rebuilds the workbook in memory, snapshots the current file and atomically replaces it.
func (s *Store) Save(ctx context.Context, l *student.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.build(l)
	if err != nil {
		return err
	}
	buf, err := f.WriteToBuffer()
	_ = f.Close()
	if err != nil {
		return errors.Wrap(err, "rendering workbook")
	}

	if s.opts.Backup != nil {
		if _, err := os.Stat(s.path); err == nil {
			if _, err := s.opts.Backup.Snapshot(ctx, s.path); err != nil {
				s.opts.Logger.Warn("backup before save failed", err)
			}
		}
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(s.path); err == nil {
		mode = info.Mode().Perm()
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".gradebook-*.xlsx")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	// CreateTemp uses 0600, which the rename would carry over
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "setting sheet permissions")
	}

	if _, err := buf.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return errors.Wrap(err, "replacing grade sheet")
	}
	s.opts.Logger.Debug("grade sheet saved", map[string]interface{}{"path": s.path, "students": len(l.Students)})
	return nil
}

// base returns the workbook to write into: the current file with its data sheet emptied
// and other sheets untouched, or a new workbook.
func (s *Store) base() (*excelize.File, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		f := excelize.NewFile()
		if s.sheetName != defaultSheet {
			if err := f.SetSheetName(defaultSheet, s.sheetName); err != nil {
				return nil, errors.Wrap(err, "naming sheet")
			}
		}
		return f, nil
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "opening grade sheet")
	}
	if idx, _ := f.GetSheetIndex(retiredSheet); idx >= 0 {
		if err := f.DeleteSheet(retiredSheet); err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "dropping retired sheet")
		}
	}
	if idx, _ := f.GetSheetIndex(s.sheetName); idx < 0 {
		if _, err := f.NewSheet(s.sheetName); err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "creating data sheet")
		}
		return f, nil
	}
	rows, err := f.GetRows(s.sheetName)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "reading data sheet")
	}
	for r := len(rows); r >= 1; r-- {
		if err := f.RemoveRow(s.sheetName, r); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "clearing row %d", r)
		}
	}
	return f, nil
}

func (s *Store) build(l *student.Ledger) (_ *excelize.File, err error) {
	f, err := s.base()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()
	sheet := s.sheetName

	header := make([]interface{}, len(headerLayout))
	for i, h := range headerLayout {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, errors.Wrap(err, "writing header")
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", "E1", style)
	}
	_ = f.SetColWidth(sheet, "A", "A", 35)
	_ = f.SetColWidth(sheet, "C", "E", 20)

	threshold := strconv.FormatFloat(s.opts.Threshold, 'f', -1, 64)
	for i, std := range l.Students {
		row := i + 2
		r := strconv.Itoa(row)
		values := []interface{}{std.Name, std.Grade}
		if err := f.SetSheetRow(sheet, "A"+r, &values); err != nil {
			return nil, errors.Wrapf(err, "writing row %d", row)
		}
		formula := `IF(B` + r + `>=` + threshold + `,"` + string(student.StatusPassed) + `","` + string(student.StatusFailed) + `")`
		if err := f.SetCellFormula(sheet, "C"+r, formula); err != nil {
			return nil, errors.Wrapf(err, "writing status formula %d", row)
		}
		if std.AccountNumber != "" {
			if err := f.SetCellStr(sheet, "D"+r, std.AccountNumber); err != nil {
				return nil, errors.Wrapf(err, "writing account number %d", row)
			}
		}
		if std.Email != "" {
			if err := f.SetCellStr(sheet, "E"+r, std.Email); err != nil {
				return nil, errors.Wrapf(err, "writing email %d", row)
			}
		}
	}

	if len(l.Retired) > 0 {
		if _, err := f.NewSheet(retiredSheet); err != nil {
			return nil, errors.Wrap(err, "creating retired sheet")
		}
		for i, acct := range l.Retired {
			if err := f.SetCellStr(retiredSheet, "A"+strconv.Itoa(i+1), acct); err != nil {
				return nil, errors.Wrap(err, "writing retired account")
			}
		}
		if err := f.SetSheetVisible(retiredSheet, false); err != nil {
			return nil, errors.Wrap(err, "hiding retired sheet")
		}
	}
	if idx, err := f.GetSheetIndex(sheet); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gradebook/core/student"
)

type studentRow struct {
	Position      int         `db:"position"`
	Name          string      `db:"name"`
	Grade         float64     `db:"grade"`
	AccountNumber null.String `db:"account_number"`
	Email         null.String `db:"email"`
}

// StudentStore keeps the ledger in the students and retired_accounts tables.
type StudentStore struct {
	db *sqlx.DB
}

var _ student.Store = (*StudentStore)(nil)

func NewStudentStore(db *sqlx.DB) *StudentStore {
	return &StudentStore{db: db}
}

func (s *StudentStore) Load(ctx context.Context) (*student.Ledger, error) {
	var rows []studentRow
	q := `SELECT position, name, grade, account_number, email FROM students ORDER BY position`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, &student.LoadError{Source: "students table", Err: err}
	}

	var retired []string
	q = `SELECT account_number FROM retired_accounts ORDER BY account_number`
	if err := s.db.SelectContext(ctx, &retired, q); err != nil {
		return nil, &student.LoadError{Source: "retired_accounts table", Err: err}
	}

	ledger := &student.Ledger{
		Students: make([]student.Student, 0, len(rows)),
		Retired:  retired,
	}
	for _, r := range rows {
		ledger.Students = append(ledger.Students, student.Student{
			Name:          r.Name,
			Grade:         r.Grade,
			AccountNumber: r.AccountNumber.String,
			Email:         r.Email.String,
		})
	}
	return ledger, nil
}

// Save replaces both tables in one transaction.
func (s *StudentStore) Save(ctx context.Context, l *student.Ledger) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM students`); err != nil {
		return errors.Wrap(err, "clearing students")
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM retired_accounts`); err != nil {
		return errors.Wrap(err, "clearing retired accounts")
	}

	insert := `INSERT INTO students (position, name, grade, account_number, email)
		VALUES (:position, :name, :grade, :account_number, :email)`
	for i, std := range l.Students {
		row := studentRow{
			Position:      i,
			Name:          std.Name,
			Grade:         std.Grade,
			AccountNumber: null.NewString(std.AccountNumber, std.AccountNumber != ""),
			Email:         null.NewString(std.Email, std.Email != ""),
		}
		if _, err = tx.NamedExecContext(ctx, insert, row); err != nil {
			return errors.Wrapf(err, "inserting student %q", std.Name)
		}
	}

	retire := tx.Rebind(`INSERT INTO retired_accounts (account_number) VALUES (?)`)
	seen := make(map[string]struct{}, len(l.Retired))
	for _, acct := range l.Retired {
		if _, dup := seen[acct]; dup {
			continue
		}
		seen[acct] = struct{}{}
		if _, err = tx.ExecContext(ctx, retire, acct); err != nil {
			return errors.Wrapf(err, "retiring account %s", acct)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing ledger")
	}
	return nil
}

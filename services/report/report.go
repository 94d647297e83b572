// Package report writes the exportable views of the ledger.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/student"
)

type Kind string

const (
	KindCSV         Kind = "report"
	KindStatistics  Kind = "statistics"
	KindCredentials Kind = "credentials"
)

var (
	ErrUnknownKind = errors.New("unknown report kind")

	extensions = map[Kind]string{
		KindCSV:         ".csv",
		KindStatistics:  ".txt",
		KindCredentials: ".txt",
	}
	rule       = strings.Repeat("=", 70)
	thinRule   = strings.Repeat("-", 70)
	dateLayout = "02/01/2006 15:04:05"
)

func sortedByName(students []student.Student) []student.Student {
	out := make([]student.Student, len(students))
	copy(out, students)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func formatGrade(g float64) string {
	return strconv.FormatFloat(g, 'f', -1, 64)
}

// WriteCSV writes one NAME,GRADE,STATUS row per student, ordered by name.
func WriteCSV(w io.Writer, students []student.Student) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"NAME", "GRADE", "STATUS"}); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, s := range sortedByName(students) {
		if err := cw.Write([]string{s.Name, formatGrade(s.Grade), string(s.Status)}); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

// WriteStatistics writes the group summary followed by the full roster.
func WriteStatistics(w io.Writer, stats student.Statistics, students []student.Student, now time.Time) error {
	ew := &errWriter{w: w}
	ew.printf("%s\n  GRADE STATISTICS REPORT\n%s\n\n", rule, rule)
	ew.printf("Generated: %s\n\n", now.Format(dateLayout))

	ew.printf("SUMMARY\n%s\n", thinRule)
	ew.printf("Students: %d\n", stats.Count)
	ew.printf("Passed: %d (%.1f%%)\n", stats.Passed, stats.PassedPct)
	ew.printf("Failed: %d (%.1f%%)\n", stats.Failed, stats.FailedPct)
	ew.printf("Mean grade: %.2f\n", stats.Mean)
	ew.printf("Highest grade: %s (%s)\n", formatGrade(stats.Max), strings.Join(stats.Best, ", "))
	ew.printf("Lowest grade: %s\n\n", formatGrade(stats.Min))

	ew.printf("STUDENTS\n%s\n", thinRule)
	if ew.err == nil {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "NAME\tGRADE\tSTATUS")
		for _, s := range sortedByName(students) {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, formatGrade(s.Grade), s.Status)
		}
		ew.err = tw.Flush()
	}
	ew.printf("\n%s\nEnd of report\n", rule)
	return errors.Wrap(ew.err, "writing statistics")
}

// WriteCredentials lists every student with their account number.
func WriteCredentials(w io.Writer, students []student.Student) error {
	ew := &errWriter{w: w}
	ew.printf("%s\n  ACCESS CREDENTIALS\n%s\n\n", rule, rule)
	ew.printf("CONFIDENTIAL - give each student ONLY their own account number\n\n%s\n", thinRule)

	var n int
	if ew.err == nil {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "STUDENT\tACCOUNT NUMBER")
		for _, s := range sortedByName(students) {
			if s.AccountNumber == "" {
				continue
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.AccountNumber)
			n++
		}
		ew.err = tw.Flush()
	}
	ew.printf("%s\n\nStudents: %d\n", thinRule, n)
	return errors.Wrap(ew.err, "writing credentials")
}

// Export creates <dir>/<kind>_YYYYMMDD_HHMMSS.<ext> and fills it with fn.
func Export(dir string, kind Kind, now time.Time, fn func(io.Writer) error) (string, error) {
	ext, ok := extensions[kind]
	if !ok {
		return "", errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating reports directory")
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s%s", kind, now.Format("20060102_150405"), ext))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "creating report")
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "closing report")
	}
	return path, nil
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

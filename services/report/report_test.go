package report

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core/student"
)

var roster = []student.Student{
	{Name: "ZOE", Grade: 9.5, AccountNumber: "324011111", Status: student.StatusPassed},
	{Name: "ANA, MARIA", Grade: 4, AccountNumber: "324022222", Status: student.StatusFailed},
	{Name: "BOB", Grade: 6, Status: student.StatusPassed},
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, roster))

	want := "NAME,GRADE,STATUS\n" +
		"\"ANA, MARIA\",4,FAILED\n" +
		"BOB,6,PASSED\n" +
		"ZOE,9.5,PASSED\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteStatistics(t *testing.T) {
	stats, err := student.ComputeStatistics(roster, student.DefaultPassingThreshold)
	require.NoError(t, err)

	var buf bytes.Buffer
	now := time.Date(2024, 6, 1, 14, 5, 9, 0, time.UTC)
	require.NoError(t, WriteStatistics(&buf, stats, roster, now))

	out := buf.String()
	assert.Contains(t, out, "Generated: 01/06/2024 14:05:09")
	assert.Contains(t, out, "Students: 3")
	assert.Contains(t, out, "Passed: 2 (66.7%)")
	assert.Contains(t, out, "Failed: 1 (33.3%)")
	assert.Contains(t, out, "Mean grade: 6.50")
	assert.Contains(t, out, "Highest grade: 9.5 (ZOE)")
	assert.Contains(t, out, "Lowest grade: 4")
	assert.Less(t, strings.Index(out, "ANA, MARIA"), strings.Index(out, "ZOE  "))
	assert.True(t, strings.HasSuffix(out, "End of report\n"))
}

func TestWriteCredentials(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCredentials(&buf, roster))

	out := buf.String()
	assert.Contains(t, out, "324011111")
	assert.Contains(t, out, "324022222")
	assert.NotContains(t, out, "BOB")
	assert.Contains(t, out, "Students: 2")
}

func TestExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	now := time.Date(2024, 6, 1, 14, 5, 9, 0, time.UTC)

	tests := []struct {
		name     string
		kind     Kind
		fn       func(io.Writer) error
		wantPath string
		wantErr  bool
	}{
		{
			name:     "csv",
			kind:     KindCSV,
			fn:       func(w io.Writer) error { return WriteCSV(w, roster) },
			wantPath: "report_20240601_140509.csv",
		},
		{
			name:     "credentials",
			kind:     KindCredentials,
			fn:       func(w io.Writer) error { return WriteCredentials(w, roster) },
			wantPath: "credentials_20240601_140509.txt",
		},
		{name: "unknown kind", kind: "pdf", fn: func(io.Writer) error { return nil }, wantErr: true},
		{
			name:    "writer fails",
			kind:    KindStatistics,
			fn:      func(io.Writer) error { return errors.New("boom") },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := Export(dir, tt.kind, now, tt.fn)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, path)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.wantPath), path)
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.NotZero(t, info.Size())
		})
	}

	_, err := os.Stat(filepath.Join(dir, "statistics_20240601_140509.txt"))
	assert.True(t, os.IsNotExist(err))
}

package logsvc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/student"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewRollbarLogger(NewStdLogger(&buf), core.NewTestConfig())

	std := student.Student{Name: "ANA", Grade: 7, AccountNumber: "324012345"}
	l.Warn("student deleted", std, map[string]interface{}{"op": "delete"})

	out := buf.String()
	assert.Contains(t, out, "WARNING: student deleted")
	assert.Contains(t, out, "student:ANA")
	assert.Contains(t, out, "op:delete")
	assert.NotContains(t, out, "324012345")
}

func TestRollbarLogger_prepare(t *testing.T) {
	l := RollbarLogger{}
	err := fmt.Errorf("boom")

	args := l.prepare("msg", []interface{}{err, student.Student{Name: "ANA", Grade: 4}, map[string]interface{}{"op": "add"}})
	require.Len(t, args, 3)
	assert.Equal(t, "msg", args[0])
	assert.Equal(t, err, args[1])
	assert.Equal(t, map[string]interface{}{"student": "ANA", "grade": 4.0, "op": "add"}, args[2])

	assert.Equal(t, []interface{}{"only"}, l.prepare("only", nil))
}

func TestDailyFileAndTail(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	lines, err := Tail(dir, 5)
	require.NoError(t, err)
	assert.Empty(t, lines)

	old, err := OpenDailyFile(dir, "20240531")
	require.NoError(t, err)
	_, _ = old.WriteString("yesterday\n")
	require.NoError(t, old.Close())

	f, err := OpenDailyFile(dir, "20240601")
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		_, _ = fmt.Fprintf(f, "line %d\n", i)
	}
	require.NoError(t, f.Close())

	lines, err = Tail(dir, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 8", "line 9", "line 10"}, lines)

	lines, err = Tail(dir, 0)
	require.NoError(t, err)
	assert.Len(t, lines, 10)

	_, err = os.Stat(filepath.Join(dir, "gradebook_20240601.log"))
	assert.NoError(t, err)
}

func TestTail_LongLine(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("x", 100*1024)

	f, err := OpenDailyFile(dir, "20240601")
	require.NoError(t, err)
	_, _ = fmt.Fprintf(f, "first\n%s\nlast\n", long)
	require.NoError(t, f.Close())

	lines, err := Tail(dir, 2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, long, lines[0])
	assert.Equal(t, "last", lines[1])
}

package logsvc

import (
	"bufio"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

const (
	logFilePrefix = "gradebook_"
	// maxLogLine bounds a single line; error reports with long stack traces exceed bufio's 64 KiB default.
	maxLogLine = 4 << 20
)

// OpenDailyFile opens (or creates) the log file of day, e.g. logs/gradebook_20240601.log.
func OpenDailyFile(dir, day string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating log directory")
	}
	path := filepath.Join(dir, logFilePrefix+day+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening log file")
	}
	return f, nil
}

// NewStdLogger returns the *log.Logger handed to NewRollbarLogger.
func NewStdLogger(out io.Writer) *log.Logger {
	return log.New(out, "", log.LstdFlags)
}

// Tail returns up to n of the last lines of the most recent log file in dir.
func Tail(dir string, n int) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, logFilePrefix+"*.log"))
	if err != nil {
		return nil, errors.Wrap(err, "listing log files")
	}
	if len(paths) == 0 {
		return nil, nil
	}
	sort.Strings(paths)

	f, err := os.Open(paths[len(paths)-1])
	if err != nil {
		return nil, errors.Wrap(err, "opening log file")
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, errors.Wrap(sc.Err(), "reading log file")
}

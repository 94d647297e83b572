package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/labstack/gommon/color"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/gradebook/core/auth"
)

var readPasswordFunc = term.ReadPassword // mockable

var errBadNumber = errors.New("not a number")

// console reads answers line by line and prints to out.
type console struct {
	in    *bufio.Reader
	out   io.Writer
	fd    int // stdin descriptor when it is a terminal, else -1
	color *color.Color
	clear bool
}

func newConsole(in io.Reader, out io.Writer, colors, clear bool) *console {
	c := &console{in: bufio.NewReader(in), out: out, fd: -1, color: color.New()}
	c.color.SetOutput(out)
	if !colors {
		c.color.Disable()
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.fd = int(f.Fd())
	}
	if f, ok := out.(*os.File); ok && clear {
		c.clear = term.IsTerminal(int(f.Fd()))
	}
	return c
}

func (c *console) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *console) println(args ...interface{}) {
	_, _ = fmt.Fprintln(c.out, args...)
}

func (c *console) title(s string) {
	c.println()
	c.println(c.color.Bold(c.color.Cyan(s)))
	c.println(strings.Repeat("=", len(s)))
}

func (c *console) success(format string, args ...interface{}) {
	c.println(c.color.Green(fmt.Sprintf(format, args...)))
}

func (c *console) warn(format string, args ...interface{}) {
	c.println(c.color.Yellow(fmt.Sprintf(format, args...)))
}

func (c *console) fail(err error) {
	c.println(c.color.Red("Error: " + err.Error()))
}

func (c *console) clearScreen() {
	if c.clear {
		c.printf("\033[H\033[2J")
	}
}

// ask prints label and returns the trimmed answer.
// io.EOF is returned only once input is exhausted with nothing left to read.
func (c *console) ask(label string) (string, error) {
	c.printf("%s", label)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// askSecret reads without echo when stdin is a terminal.
func (c *console) askSecret(label string) (string, error) {
	if c.fd < 0 {
		return c.ask(label)
	}
	c.printf("%s", label)
	pwd, err := readPasswordFunc(c.fd)
	c.println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

// askGrade accepts either "." or "," as the decimal separator.
func (c *console) askGrade(label string) (float64, error) {
	answer, err := c.ask(label)
	if err != nil {
		return 0, err
	}
	return parseGrade(answer)
}

func parseGrade(s string) (float64, error) {
	g, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(s), ",", ".", 1), 64)
	if err != nil {
		return 0, errors.Wrapf(errBadNumber, "%q", s)
	}
	return g, nil
}

// confirm returns true only for y/yes.
func (c *console) confirm(label string) (bool, error) {
	answer, err := c.ask(label + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// authenticate runs gate against the console and reports the outcome.
func (c *console) authenticate(gate *auth.Gate) (bool, error) {
	gate.OnFailure = func(remaining int) {
		if remaining > 0 {
			c.warn("Wrong password, %d attempt(s) left.", remaining)
		}
	}
	ok, err := gate.Authenticate(auth.PrompterFunc(func(int, int) (string, error) {
		return c.askSecret("Admin password: ")
	}))
	if err != nil {
		return false, err
	}
	if !ok {
		c.println(c.color.Red("Access denied."))
	}
	return ok, nil
}

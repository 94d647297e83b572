// Command gradebook keeps one group's grades in a spreadsheet or database,
// with an interactive menu for students and admins.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/gradebook/core"
)

var logger = log.New(os.Stderr, "GRADEBOOK : ", log.LstdFlags)

func main() {
	conf, err := core.NewConfig()
	errAndDie(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cli := newCommandLine(conf, os.Stdin, os.Stdout)
	err = newRootCmd(cli).ExecuteContext(ctx)
	stop()

	// a cancelled session still saves pending changes
	cli.close(context.Background())
	if err != nil {
		logger.Printf("error: %s", err)
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

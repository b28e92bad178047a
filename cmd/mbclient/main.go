package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/56kcloud/mb-client/internal/events"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer events.Shutdown()
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}

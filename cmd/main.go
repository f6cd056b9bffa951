package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"centinela/tracing"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	stopTrace, err := tracing.Start(os.Getenv("CENTINELA_TRACE_FILE"))
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start trace: %v\n", err)
	} else {
		defer stopTrace()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go handleSignalEvent(ctx, cancel, sigChan, stderr)

	a := newApp(stdout, stderr, newHuhPrompter(os.Stdin, stderr))
	defer a.teardown()
	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// handleSignalEvent cancels the running scan on the first signal. It
// returns without cancelling when ctx ends first.
func handleSignalEvent(ctx context.Context, cancel context.CancelFunc, sigChan <-chan os.Signal, stderr io.Writer) {
	select {
	case <-sigChan:
		fmt.Fprintln(stderr, "Interrupt signal received. Shutting down...")
		cancel()
	case <-ctx.Done():
	}
}

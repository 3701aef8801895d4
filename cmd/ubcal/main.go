package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
)

// Exit codes for different failure modes
const (
	ExitSuccess    = 0 // Every rated row is within the CMC
	ExitCMCFailure = 1 // --strict and one or more rows exceed the CMC
	ExitError      = 2 // Configuration or runtime error
)

// ComplianceError indicates that the jobs ran, but one or more results have
// an expanded uncertainty larger than the declared CMC.
type ComplianceError struct {
	Message string
}

func (e *ComplianceError) Error() string {
	return e.Message
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := execute(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintln(os.Stderr, err)

	var complianceErr *ComplianceError
	if errors.As(err, &complianceErr) {
		return ExitCMCFailure
	}
	return ExitError
}

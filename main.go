package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/interop-relayer/cmd"
	"github.com/hyperledger-labs/interop-relayer/core"
)

// exitTempFail is returned for errors that may succeed on a later attempt (EX_TEMPFAIL).
const exitTempFail = 75

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if hint := errors.FlattenHints(err); hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	if core.IsRetryable(err) {
		os.Exit(exitTempFail)
	}
	os.Exit(1)
}

package core

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// codec
	ErrMalformedAddress     = errors.New("malformed interoperable address")
	ErrUnsupportedChainType = errors.New("unsupported chain type")
	ErrMalformedBundle      = errors.New("malformed interop bundle")

	// extraction
	ErrNoInteropEvents = errors.New("no interop events in transaction")

	// proof stage
	ErrFinalityTimedOut = errors.New("block was not finalized in time")
	ErrProofTimedOut    = errors.New("log proof not available in time")

	// root stage
	ErrRootUnavailable = errors.New("interop root did not become available in time")
	ErrRootMismatch    = errors.New("interop root mismatch")

	// submission
	ErrExecutionReverted      = errors.New("execution reverted")
	ErrAlreadyExecuted        = errors.New("bundle already processed")
	ErrDestinationMismatch    = errors.New("bundle destination does not match destination chain")
	ErrUntrustedConfiguration = errors.New("untrusted configuration")
	ErrSubmissionUnknown      = errors.New("submission outcome unknown")
	ErrSignerRequired         = errors.New("signer required")

	// watch
	ErrWatchTimedOut = errors.New("watch timed out")
)

// retryable lists the conditions that waiting and re-invoking can resolve.
var retryable = []error{
	ErrFinalityTimedOut,
	ErrProofTimedOut,
	ErrRootUnavailable,
	ErrWatchTimedOut,
}

// IsRetryable reports whether err is a transient condition.
func IsRetryable(err error) bool {
	for _, target := range retryable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Step names a stage of the relay pipeline.
type Step string

const (
	StepExtract  Step = "extract"
	StepFinality Step = "wait-finality"
	StepProof    Step = "fetch-proof"
	StepRoot     Step = "wait-root"
	StepSubmit   Step = "submit"
	StepExplain  Step = "explain"
)

// StepError reports a failure of one pipeline step together with the
// diagnostics that were collected for it.
type StepError struct {
	Step   Step
	Err    error
	Checks Checks
}

func newStepError(step Step, err error, checks Checks) *StepError {
	return &StepError{Step: step, Err: err, Checks: checks}
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Step, e.Err)
	if IsRetryable(e.Err) {
		b.WriteString(" (retryable)")
	}
	for _, c := range e.Checks.Failed() {
		fmt.Fprintf(&b, "\n  - %s", c)
	}
	return b.String()
}

func (e *StepError) Unwrap() error { return e.Err }

// Retryable reports whether re-invoking the step later is expected to help.
func (e *StepError) Retryable() bool { return IsRetryable(e.Err) }

// RevertError carries the revert payload returned by the destination chain.
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return ErrExecutionReverted.Error()
	}
	return fmt.Sprintf("%s: %s", ErrExecutionReverted, e.Reason)
}

func (e *RevertError) Is(target error) bool {
	return target == ErrExecutionReverted
}

// NewRevertError decodes data into a RevertError.
func NewRevertError(data []byte) *RevertError {
	return &RevertError{Reason: DecodeRevertReason(data), Data: data}
}

// classifyRevert maps reverts signalling prior processing to ErrAlreadyExecuted.
func classifyRevert(err error) error {
	var rerr *RevertError
	if !errors.As(err, &rerr) {
		return err
	}
	if IsAlreadyProcessedRevert(rerr.Data) {
		return errors.Mark(errors.Wrap(err, "destination reports bundle as processed"), ErrAlreadyExecuted)
	}
	return err
}

func withHint(err error, hint string) error {
	return errors.WithHint(err, hint)
}

package core

import (
	"bytes"
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/log"
	"github.com/hyperledger-labs/interop-relayer/metrics"
	"github.com/hyperledger-labs/interop-relayer/otelcore/semconv"
	"github.com/hyperledger-labs/interop-relayer/signer"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ExecuteOptions selects how a bundle is submitted.
type ExecuteOptions struct {
	Action BundleAction
	// DryRun simulates the handler call without broadcasting.
	DryRun bool
	// Signer is required unless DryRun is set. In dry-run mode it only sets the caller.
	Signer signer.Signer
	// Receipt bounds the wait for the receipt of a broadcast submission.
	Receipt PollConfig
	// OnSubmitted is called once the transaction is broadcast, before its receipt is awaited.
	OnSubmitted func(txHash common.Hash)
}

// ExecutionResult is the outcome of a submission or simulation.
type ExecutionResult struct {
	Action       BundleAction  `json:"mode"`
	DryRun       bool          `json:"dryRun"`
	BundleHash   common.Hash   `json:"bundleHash"`
	TxHash       *common.Hash  `json:"txHash,omitempty"`
	Success      bool          `json:"success"`
	RevertReason string        `json:"revertReason,omitempty"`
	Status       BundleStatus  `json:"status"`
	Calls        []CallOutcome `json:"calls,omitempty"`
	Checks       Checks        `json:"checks,omitempty"`
}

const (
	resultSuccess         = "success"
	resultReverted        = "reverted"
	resultAlreadyExecuted = "already_executed"
	resultUnknown         = "unknown"
	resultError           = "error"
)

// ExecuteBundle submits bundle and proof to the interop handler of dst, or simulates
// the submission in dry-run mode.
//
// The proof message is normalized to commit to bundle as sent by the interop center
// of dst before anything is sent. A bundle that dst reports as already processed for
// the action fails with ErrAlreadyExecuted without a submission.
//
// The result is returned together with the error when the submission reached the
// chain, so that callers can report the transaction and the diagnostics.
func ExecuteBundle(ctx context.Context, dst *ProvableChain, bundle *ExtractedBundle, proof *MessageInclusionProof, opts ExecuteOptions) (*ExecutionResult, error) {
	ctx, span := tracer.Start(ctx, "ExecuteBundle",
		WithChainAttributes(dst.ChainID()),
		WithBundleAttributes(bundle.BundleHash),
		trace.WithAttributes(semconv.ModeKey.String(string(opts.Action))),
	)
	defer span.End()
	logger := GetChainLogger(dst.Chain).WithBundle(bundle.BundleHash.Hex())
	defer logger.TimeTrackContext(ctx, time.Now(), "ExecuteBundle", "mode", string(opts.Action), "dry_run", opts.DryRun)

	result, err := executeBundle(ctx, dst, bundle, proof, opts, logger)
	recordError(span, err)

	mode := string(opts.Action)
	if opts.DryRun {
		mode = "dry-run"
	}
	metrics.SubmissionsCounter.Add(ctx, 1, api.WithAttributes(
		metrics.ModeKey.String(mode),
		metrics.ResultKey.String(submissionResult(result, err)),
	))
	return result, err
}

func submissionResult(result *ExecutionResult, err error) string {
	switch {
	case errors.Is(err, ErrAlreadyExecuted):
		return resultAlreadyExecuted
	case errors.Is(err, ErrSubmissionUnknown):
		return resultUnknown
	case errors.Is(err, ErrExecutionReverted):
		return resultReverted
	case err != nil:
		return resultError
	case result != nil && !result.Success:
		return resultReverted
	default:
		return resultSuccess
	}
}

func executeBundle(ctx context.Context, dst *ProvableChain, bundle *ExtractedBundle, proof *MessageInclusionProof, opts ExecuteOptions, logger *log.RelayLogger) (*ExecutionResult, error) {
	if err := opts.Action.Validate(); err != nil {
		return nil, err
	}
	if opts.Signer == nil && !opts.DryRun {
		return nil, withHint(
			errors.Wrapf(ErrSignerRequired, "%s requires a signer or --dry-run", opts.Action),
			"pass --private-key or set the signer environment variable",
		)
	}
	var from *common.Address
	if opts.Signer != nil {
		addr, err := signer.Address(ctx, opts.Signer)
		if err != nil {
			return nil, err
		}
		from = &addr
	}

	proof = normalizeProof(ctx, logger, dst.Contracts().InteropCenter, bundle, proof)

	// pre-flight
	state := QueryDestinationState(ctx, dst, bundle, proof)
	checks := Diagnose(bundle, proof, state, from)
	if state.ChainIDErr != nil {
		return nil, newStepError(StepSubmit, errors.Wrap(state.ChainIDErr, "failed to query destination chain id"), checks)
	}
	if bigOrZero(bundle.Bundle.DestinationChainID).Cmp(state.ChainID) != 0 {
		return nil, newStepError(StepSubmit, withHint(
			errors.Wrapf(ErrDestinationMismatch, "bundle destination %s does not match current chain %s", bigOrZero(bundle.Bundle.DestinationChainID), state.ChainID),
			"select the destination chain the bundle was sent to",
		), checks)
	}
	result := &ExecutionResult{
		Action:     opts.Action,
		DryRun:     opts.DryRun,
		BundleHash: bundle.BundleHash,
		Status:     BundleStatus{State: state.Status},
		Checks:     checks,
	}
	if state.StatusErr != nil {
		logger.WarnContext(ctx, "failed to query bundle status", "error", state.StatusErr)
	} else if state.Status.Processed(opts.Action) {
		return result, newStepError(StepSubmit, errors.Wrapf(ErrAlreadyExecuted, "bundle %s is %s on chain %s", bundle.BundleHash.Hex(), state.Status, dst.ChainID()), nil)
	}

	if opts.DryRun {
		return simulateBundle(ctx, dst, bundle, proof, from, result, logger)
	}
	return submitBundle(ctx, dst, bundle, proof, opts, from, result, logger)
}

func simulateBundle(ctx context.Context, dst *ProvableChain, bundle *ExtractedBundle, proof *MessageInclusionProof, from *common.Address, result *ExecutionResult, logger *log.RelayLogger) (*ExecutionResult, error) {
	err := dst.SimulateBundle(ctx, result.Action, bundle.Encoded, proof, from)
	if err == nil {
		result.Success = true
		logger.InfoContext(ctx, "dry-run success", "mode", string(result.Action))
		return result, nil
	}
	var rerr *RevertError
	if !errors.As(err, &rerr) {
		return nil, newStepError(StepSubmit, errors.Wrap(err, "simulation failed"), nil)
	}
	result.RevertReason = rerr.Reason
	if err := classifyRevert(err); errors.Is(err, ErrAlreadyExecuted) {
		return result, newStepError(StepSubmit, err, nil)
	}
	logger.InfoContext(ctx, "dry-run failed", "mode", string(result.Action), "reason", rerr.Reason)
	return result, nil
}

func submitBundle(ctx context.Context, dst *ProvableChain, bundle *ExtractedBundle, proof *MessageInclusionProof, opts ExecuteOptions, from *common.Address, result *ExecutionResult, logger *log.RelayLogger) (*ExecutionResult, error) {
	txHash, err := dst.SubmitBundle(ctx, opts.Action, bundle.Encoded, proof, opts.Signer)
	if err != nil {
		var rerr *RevertError
		if errors.As(err, &rerr) {
			return reverted(ctx, dst, bundle, proof, from, result, rerr, logger)
		}
		return nil, newStepError(StepSubmit, errors.Wrap(err, "failed to submit bundle"), nil)
	}
	result.TxHash = &txHash
	logger.InfoContext(ctx, "bundle submitted", "mode", string(opts.Action), "tx_hash", txHash.Hex())
	if opts.OnSubmitted != nil {
		opts.OnSubmitted(txHash)
	}

	cfg := opts.Receipt.withDefaults(DefaultPollInterval)
	var receipt *Receipt
	err = pollUntil(ctx, cfg, func(ctx context.Context) (bool, error) {
		metrics.PollAttemptsCounter.Add(ctx, 1, api.WithAttributes(metrics.StageKey.String(string(StepSubmit))))
		r, err := dst.QueryReceipt(ctx, txHash)
		if err != nil {
			logger.DebugContext(ctx, "failed to query receipt", "tx_hash", txHash.Hex(), "error", err)
			return false, nil
		}
		receipt = r
		return r != nil, nil
	})
	if err != nil {
		if errors.Is(err, errPollDeadline) {
			err = errors.Newf("no receipt after %s", cfg.Timeout)
		}
		return result, newStepError(StepSubmit, withHint(
			errors.Mark(errors.Wrapf(err, "outcome of %s is unknown", txHash.Hex()), ErrSubmissionUnknown),
			"check the transaction on the destination chain and the bundle status before resubmitting",
		), nil)
	}

	if !receipt.Succeeded() {
		// the receipt carries no reason; replay the call to recover it
		rerr := &RevertError{}
		if err := dst.SimulateBundle(ctx, opts.Action, bundle.Encoded, proof, from); err != nil {
			_ = errors.As(err, &rerr)
		}
		return reverted(ctx, dst, bundle, proof, from, result, rerr, logger)
	}

	result.Success = true
	if state, err := dst.QueryBundleStatus(ctx, bundle.BundleHash); err != nil {
		logger.WarnContext(ctx, "failed to query bundle status", "error", err)
	} else {
		result.Status = BundleStatus{State: state}
	}
	result.Calls = make([]CallOutcome, len(bundle.Bundle.Calls))
	for i := range bundle.Bundle.Calls {
		result.Calls[i] = CallOutcome{Index: i, SendID: bundle.SendIDs[i]}
		status, err := dst.QueryCallStatus(ctx, bundle.BundleHash, i)
		if err != nil {
			logger.WarnContext(ctx, "failed to query call status", "call_index", i, "error", err)
			continue
		}
		result.Calls[i].Status = status
	}
	logger.InfoContext(ctx, "bundle processed", "mode", string(opts.Action), "tx_hash", txHash.Hex(), "status", result.Status.State.String())
	return result, nil
}

// reverted records a revert and re-runs the diagnostics against the current destination state.
func reverted(ctx context.Context, dst *ProvableChain, bundle *ExtractedBundle, proof *MessageInclusionProof, from *common.Address, result *ExecutionResult, rerr *RevertError, logger *log.RelayLogger) (*ExecutionResult, error) {
	result.Success = false
	result.RevertReason = rerr.Reason
	result.Status = BundleStatus{State: BundleFailed, Reason: rerr.Reason}
	result.Checks = Explain(ctx, dst, bundle, proof, from)

	err := classifyRevert(rerr)
	if errors.Is(err, ErrAlreadyExecuted) {
		return result, newStepError(StepSubmit, err, nil)
	}
	logger.ErrorContext(ctx, "bundle reverted", err, "reason", rerr.Reason)
	return result, newStepError(StepSubmit, err, result.Checks)
}

// normalizeProof makes the proof message commit to bundle as sent by center.
func normalizeProof(ctx context.Context, logger *log.RelayLogger, center common.Address, bundle *ExtractedBundle, proof *MessageInclusionProof) *MessageInclusionProof {
	normalized := proof.Normalized(center, bundle.Encoded)
	if proof.Message.Sender != normalized.Message.Sender {
		logger.WarnContext(ctx, "overriding proof message sender with the interop center",
			"sender", proof.Message.Sender.Hex(), "center", center.Hex())
	}
	if !bytes.Equal(proof.Message.Data, normalized.Message.Data) {
		logger.WarnContext(ctx, "overriding proof message data with the bundle payload")
	}
	return normalized
}

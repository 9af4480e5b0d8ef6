package core

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/log"
	"github.com/hyperledger-labs/interop-relayer/signer"
)

// RelayState is the progress of a relay. States only advance in declaration order,
// except that a failed or unknown submission may be submitted again.
type RelayState string

const (
	RelaySent        RelayState = "Sent"
	RelayBundleKnown RelayState = "BundleKnown"
	RelayProofKnown  RelayState = "ProofKnown"
	RelayRootKnown   RelayState = "RootKnown"
	RelaySubmitted   RelayState = "Submitted"
	RelayExecuted    RelayState = "Executed"
	RelayFailed      RelayState = "Failed"
)

// RelayOptions configures Relay.
type RelayOptions struct {
	Action BundleAction
	DryRun bool
	Signer signer.Signer

	TxHash       common.Hash
	MessageIndex uint32
	BundleIndex  int

	Finality     PollConfig
	Proof        PollConfig
	Root         PollConfig
	Receipt      PollConfig
	SkipFinality bool

	// Store persists artifacts. A nil Store keeps everything in memory.
	Store *ArtifactStore
	// Resubmit allows a new submission when an earlier one has an unknown outcome.
	Resubmit bool
}

// RelaySummary is the persisted record of a relay.
type RelaySummary struct {
	State              RelayState       `json:"state"`
	Mode               BundleAction     `json:"mode"`
	DryRun             bool             `json:"dryRun"`
	SourceChainID      string           `json:"sourceChainId"`
	DestinationChainID string           `json:"destinationChainId"`
	L1BatchNumber      uint64           `json:"l1BatchNumber"`
	L2MessageIndex     uint64           `json:"l2MessageIndex"`
	BundleHash         common.Hash      `json:"bundleHash"`
	SourceTxHash       common.Hash      `json:"sourceTxHash"`
	BundleIndex        int              `json:"bundleIndex"`
	MessageIndex       uint32           `json:"msgIndex"`
	HandlerTxHash      *common.Hash     `json:"handlerTxHash,omitempty"`
	Result             *ExecutionResult `json:"result,omitempty"`
	LastStep           Step             `json:"lastStep,omitempty"`
	LastError          string           `json:"lastError,omitempty"`
}

type relayer struct {
	src, dst *ProvableChain
	opts     RelayOptions
	summary  *RelaySummary
	logger   *log.RelayLogger
}

// Relay runs the whole pipeline for the bundle sent by opts.TxHash: extraction,
// finality and proof, root wait and submission.
//
// With a Store, every artifact is written as soon as it is obtained and the
// summary after every transition; a later call with the same Store resumes after
// the last completed step. The root is always re-checked on the destination.
func Relay(ctx context.Context, src, dst *ProvableChain, opts RelayOptions) (*RelaySummary, error) {
	ctx, span := tracer.Start(ctx, "Relay", WithChainPairAttributes(src, dst), WithTxAttributes(opts.TxHash))
	defer span.End()
	logger := log.GetLogger().WithChain(src.ChainID(), dst.ChainID()).WithModule("core.relay")
	defer logger.TimeTrackContext(ctx, time.Now(), "Relay")

	if err := opts.Action.Validate(); err != nil {
		return nil, err
	}
	if opts.Signer == nil && !opts.DryRun {
		return nil, errors.Wrap(ErrSignerRequired, "relay requires a signer or --dry-run")
	}

	r := &relayer{src: src, dst: dst, opts: opts, logger: logger}
	summary, err := r.run(ctx)
	recordError(span, err)
	return summary, err
}

func (r *relayer) run(ctx context.Context) (*RelaySummary, error) {
	prior, err := r.loadSummary()
	if err != nil {
		return nil, err
	}
	r.summary = &RelaySummary{
		State:              RelaySent,
		Mode:               r.opts.Action,
		DryRun:             r.opts.DryRun,
		DestinationChainID: r.dst.ChainID(),
		SourceTxHash:       r.opts.TxHash,
		BundleIndex:        r.opts.BundleIndex,
		MessageIndex:       r.opts.MessageIndex,
	}

	bundle, err := r.bundle(ctx)
	if err != nil {
		return r.fail(StepExtract, err)
	}
	r.summary.BundleHash = bundle.BundleHash

	// an earlier submission is settled before anything else overwrites the summary
	if !r.opts.DryRun && prior != nil && prior.State == RelaySubmitted && prior.HandlerTxHash != nil {
		if done, err := r.reconcile(ctx, prior, bundle); err != nil || done {
			return r.summary, err
		}
	}

	if err := r.advance(RelayBundleKnown); err != nil {
		return r.summary, err
	}

	proof, err := r.proof(ctx, bundle)
	if err != nil {
		return r.fail(StepProof, err)
	}
	r.summary.SourceChainID = bigOrZero(proof.ChainID).String()
	r.summary.L1BatchNumber = proof.L1BatchNumber
	r.summary.L2MessageIndex = proof.L2MessageIndex
	if err := r.advance(RelayProofKnown); err != nil {
		return r.summary, err
	}

	if err := WaitForRoot(ctx, r.dst, bigOrZero(proof.ChainID), proof.L1BatchNumber, proof.Root, r.opts.Root); err != nil {
		return r.fail(StepRoot, err)
	}
	if err := r.advance(RelayRootKnown); err != nil {
		return r.summary, err
	}

	return r.submit(ctx, bundle, proof)
}

func (r *relayer) loadSummary() (*RelaySummary, error) {
	if r.opts.Store == nil {
		return nil, nil
	}
	prior, err := r.opts.Store.LoadSummary()
	if err != nil {
		return nil, err
	}
	if prior != nil && prior.SourceTxHash != r.opts.TxHash {
		return nil, withHint(
			errors.Newf("%s holds the relay of %s, not %s", r.opts.Store.Dir, prior.SourceTxHash.Hex(), r.opts.TxHash.Hex()),
			"use a separate --out-dir per source transaction",
		)
	}
	if prior != nil && (prior.BundleIndex != r.opts.BundleIndex || prior.MessageIndex != r.opts.MessageIndex) {
		return nil, withHint(
			errors.Newf("%s holds the relay of bundle %d and message %d, not bundle %d and message %d",
				r.opts.Store.Dir, prior.BundleIndex, prior.MessageIndex, r.opts.BundleIndex, r.opts.MessageIndex),
			"use a separate --out-dir per bundle, or the indexes of the stored relay",
		)
	}
	return prior, nil
}

func (r *relayer) bundle(ctx context.Context) (*ExtractedBundle, error) {
	if r.opts.Store != nil {
		b, err := r.opts.Store.LoadBundle()
		if err != nil {
			return nil, err
		}
		if b != nil {
			r.logger.InfoContext(ctx, "resuming with the stored bundle", "bundle_hash", b.BundleHash.Hex())
			return b, nil
		}
	}
	bundles, err := ExtractBundles(ctx, r.src, r.opts.TxHash)
	if err != nil {
		return nil, err
	}
	b, err := SelectBundle(bundles, r.opts.BundleIndex)
	if err != nil {
		return nil, err
	}
	if r.opts.Store != nil {
		if err := r.opts.Store.SaveBundle(b); err != nil {
			return nil, errors.Wrap(err, "failed to save bundle")
		}
	}
	return b, nil
}

func (r *relayer) proof(ctx context.Context, bundle *ExtractedBundle) (*MessageInclusionProof, error) {
	if r.opts.Store != nil {
		p, err := r.opts.Store.LoadProof()
		if err != nil {
			return nil, err
		}
		if p != nil {
			r.logger.InfoContext(ctx, "resuming with the stored proof", "l1_batch_number", p.L1BatchNumber)
			return p, nil
		}
	}
	p, err := FetchProof(ctx, r.src, r.opts.TxHash, r.opts.MessageIndex, bundle, FetchProofOptions{
		Finality:     r.opts.Finality,
		Proof:        r.opts.Proof,
		SkipFinality: r.opts.SkipFinality,
	})
	if err != nil {
		return nil, err
	}
	if r.opts.Store != nil {
		if err := r.opts.Store.SaveProof(p); err != nil {
			return nil, errors.Wrap(err, "failed to save proof")
		}
	}
	return p, nil
}

// reconcile settles a submission of an earlier run. It reports done when that
// submission decided the relay.
func (r *relayer) reconcile(ctx context.Context, prior *RelaySummary, bundle *ExtractedBundle) (bool, error) {
	txHash := *prior.HandlerTxHash
	r.logger.InfoContext(ctx, "reconciling an earlier submission", "tx_hash", txHash.Hex())
	receipt, err := r.dst.QueryReceipt(ctx, txHash)
	if err != nil {
		*r.summary = *prior
		_, err = r.fail(StepSubmit, errors.Wrapf(err, "failed to query receipt of %s", txHash.Hex()))
		return true, err
	}
	switch {
	case receipt == nil && !r.opts.Resubmit:
		*r.summary = *prior
		_, err = r.fail(StepSubmit, withHint(
			errors.Wrapf(ErrSubmissionUnknown, "earlier submission %s has no receipt", txHash.Hex()),
			"wait for the transaction or pass --resubmit to submit again",
		))
		return true, err
	case receipt == nil:
		r.logger.WarnContext(ctx, "resubmitting although an earlier submission has no receipt", "tx_hash", txHash.Hex())
		return false, nil
	case !receipt.Succeeded():
		r.logger.InfoContext(ctx, "earlier submission reverted; submitting again", "tx_hash", txHash.Hex())
		return false, nil
	}

	*r.summary = *prior
	r.summary.LastStep, r.summary.LastError = "", ""
	result := &ExecutionResult{Action: r.opts.Action, BundleHash: bundle.BundleHash, TxHash: &txHash, Success: true}
	if state, err := r.dst.QueryBundleStatus(ctx, bundle.BundleHash); err == nil {
		result.Status = BundleStatus{State: state}
	}
	r.summary.Result = result
	return true, r.advance(RelayExecuted)
}

func (r *relayer) submit(ctx context.Context, bundle *ExtractedBundle, proof *MessageInclusionProof) (*RelaySummary, error) {
	result, err := ExecuteBundle(ctx, r.dst, bundle, proof, ExecuteOptions{
		Action:  r.opts.Action,
		DryRun:  r.opts.DryRun,
		Signer:  r.opts.Signer,
		Receipt: r.opts.Receipt,
		OnSubmitted: func(txHash common.Hash) {
			r.summary.HandlerTxHash = &txHash
			if err := r.advance(RelaySubmitted); err != nil {
				r.logger.ErrorContext(ctx, "failed to save relay summary", err)
			}
		},
	})
	r.summary.Result = result
	switch {
	case err == nil && r.opts.DryRun:
		// a simulation leaves the relay where it was
		return r.summary, r.save()
	case err == nil:
		return r.summary, r.advance(RelayExecuted)
	case errors.Is(err, ErrAlreadyExecuted):
		r.summary.LastStep, r.summary.LastError = StepSubmit, err.Error()
		return r.summary, errors.CombineErrors(err, r.advance(RelayExecuted))
	case errors.Is(err, ErrExecutionReverted):
		r.summary.State = RelayFailed
	}
	return r.fail(StepSubmit, err)
}

func (r *relayer) advance(state RelayState) error {
	r.summary.State = state
	r.logger.Info("relay state changed", "state", string(state))
	return r.save()
}

func (r *relayer) fail(step Step, err error) (*RelaySummary, error) {
	r.summary.LastStep = step
	r.summary.LastError = err.Error()
	r.logger.Error("relay step failed", err, "step", string(step), "state", string(r.summary.State))
	if serr := r.save(); serr != nil {
		err = errors.CombineErrors(err, serr)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		err = newStepError(step, err, nil)
	}
	return r.summary, err
}

func (r *relayer) save() error {
	if r.opts.Store == nil {
		return nil
	}
	if err := r.opts.Store.SaveSummary(r.summary); err != nil {
		return errors.Wrap(err, "failed to save relay summary")
	}
	return nil
}

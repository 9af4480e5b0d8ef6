package core

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/metrics"
	"github.com/hyperledger-labs/interop-relayer/otelcore/semconv"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// FetchProofOptions bounds the finality and proof polls.
type FetchProofOptions struct {
	Finality PollConfig
	Proof    PollConfig
	// SkipFinality fetches the proof without waiting for finality first.
	SkipFinality bool
}

// FetchProof waits until txHash is finalized on src and then until the node has
// indexed the inclusion proof of its msgIndex-th L2->L1 message.
//
// If bundle is not nil the proof message commits to it as sent by the interop center.
func FetchProof(ctx context.Context, src *ProvableChain, txHash common.Hash, msgIndex uint32, bundle *ExtractedBundle, opts FetchProofOptions) (*MessageInclusionProof, error) {
	ctx, span := tracer.Start(ctx, "FetchProof",
		WithChainAttributes(src.ChainID()),
		WithTxAttributes(txHash),
		trace.WithAttributes(semconv.MessageIndexKey.Int64(int64(msgIndex))),
	)
	defer span.End()
	logger := GetChainLogger(src.Chain)
	defer logger.TimeTrackContext(ctx, time.Now(), "FetchProof")

	receipt, err := queryReceipt(ctx, src, logger, txHash)
	if err != nil {
		recordError(span, err)
		return nil, newStepError(StepProof, err, nil)
	}

	if opts.SkipFinality {
		logger.WarnContext(ctx, "skipping the finality wait", "block_number", receipt.BlockNumber)
	} else if err := WaitForFinality(ctx, src, receipt.BlockNumber, opts.Finality); err != nil {
		recordError(span, err)
		return nil, err
	}

	logProof, err := waitForLogProof(ctx, src, txHash, msgIndex, opts.Proof)
	if err != nil {
		recordError(span, err)
		return nil, newStepError(StepProof, err, nil)
	}

	var chainID *big.Int
	if err := withRetry(ctx, logger, "chain id query", func() error {
		id, err := src.QueryChainID(ctx)
		if err != nil {
			return err
		}
		chainID = id
		return nil
	}); err != nil {
		recordError(span, err)
		return nil, newStepError(StepProof, errors.Wrap(err, "failed to query source chain id"), nil)
	}

	proof, err := buildInclusionProof(chainID, receipt, logProof, src.Contracts().InteropCenter, bundle)
	if err != nil {
		recordError(span, err)
		return nil, newStepError(StepProof, err, nil)
	}

	metrics.ProofsFetchedCounter.Add(ctx, 1, api.WithAttributes(metrics.ChainIDKey.String(src.ChainID())))
	logger.InfoContext(ctx, "proof fetched",
		"tx_hash", txHash.Hex(),
		"l1_batch_number", proof.L1BatchNumber,
		"l2_message_index", proof.L2MessageIndex,
		"root", proof.Root.Hex(),
	)
	return proof, nil
}

// WaitForFinality polls the finalized block pointer of src until it reaches height.
func WaitForFinality(ctx context.Context, src *ProvableChain, height uint64, cfg PollConfig) error {
	ctx, span := tracer.Start(ctx, "WaitForFinality", WithChainAttributes(src.ChainID()))
	defer span.End()
	logger := GetChainLogger(src.Chain)
	cfg = cfg.withDefaults(DefaultFinalityInterval)

	var last uint64
	err := pollUntil(ctx, cfg, func(ctx context.Context) (bool, error) {
		metrics.PollAttemptsCounter.Add(ctx, 1, api.WithAttributes(metrics.StageKey.String(string(StepFinality))))
		finalized, err := src.LatestFinalizedHeight(ctx)
		if err != nil {
			// an unreadable pointer counts as not finalized yet
			logger.DebugContext(ctx, "failed to read finalized height", "error", err)
			return false, nil
		}
		last = finalized
		metrics.FinalizedBlockHeightGauge.Set(int64(min(finalized, math.MaxInt64)), metrics.ChainIDKey.String(src.ChainID()))
		return finalized >= height, nil
	})
	if errors.Is(err, errPollDeadline) {
		err = withHint(
			errors.Wrapf(ErrFinalityTimedOut, "block %d not finalized after %s (latest finalized %d)", height, cfg.Timeout, last),
			"re-run later or raise the timeout",
		)
	}
	if err != nil {
		recordError(span, err)
		return newStepError(StepFinality, err, nil)
	}
	logger.InfoContext(ctx, "block finalized", "block_number", height, "finalized", last)
	return nil
}

func waitForLogProof(ctx context.Context, src *ProvableChain, txHash common.Hash, msgIndex uint32, cfg PollConfig) (*LogProof, error) {
	logger := GetChainLogger(src.Chain)
	cfg = cfg.withDefaults(DefaultPollInterval)

	var proof *LogProof
	var lastErr error
	err := pollUntil(ctx, cfg, func(ctx context.Context) (bool, error) {
		metrics.PollAttemptsCounter.Add(ctx, 1, api.WithAttributes(metrics.StageKey.String(string(StepProof))))
		p, err := src.QueryLogProof(ctx, txHash, msgIndex)
		if err != nil {
			lastErr = err
			logger.WarnContext(ctx, "failed to query log proof", "tx_hash", txHash.Hex(), "error", err)
			return false, nil
		}
		lastErr = nil
		if p == nil {
			logger.DebugContext(ctx, "log proof not indexed yet", "tx_hash", txHash.Hex(), "msg_index", msgIndex)
			return false, nil
		}
		proof = p
		return true, nil
	})
	if errors.Is(err, errPollDeadline) {
		err = errors.Wrapf(ErrProofTimedOut, "proof of message %d in %s not indexed after %s", msgIndex, txHash.Hex(), cfg.Timeout)
		if lastErr != nil {
			err = errors.WithSecondaryError(errors.Wrapf(err, "last query error: %v", lastErr), lastErr)
		}
		return nil, withHint(err, "re-run fetch-proof later; finalized transactions are indexed eventually")
	}
	return proof, err
}

func buildInclusionProof(chainID *big.Int, receipt *Receipt, logProof *LogProof, center common.Address, bundle *ExtractedBundle) (*MessageInclusionProof, error) {
	var batch uint64
	switch {
	case logProof.BatchNumber != nil:
		batch = *logProof.BatchNumber
	case receipt.L1BatchNumber != nil:
		batch = *receipt.L1BatchNumber
	default:
		return nil, errors.Newf("batch number of %s is unknown: neither the proof nor the receipt reports it", receipt.TxHash.Hex())
	}
	txNumber := receipt.TxNumberInBatch()
	if txNumber > math.MaxUint16 {
		return nil, errors.Newf("tx number in batch %d does not fit in uint16", txNumber)
	}
	msg := InclusionMessage{
		TxNumberInBatch: uint16(txNumber),
		Sender:          center,
		Data:            []byte{},
	}
	if bundle != nil {
		msg.Data = MessageData(bundle.Encoded)
	}
	proof := make([]common.Hash, len(logProof.Proof))
	copy(proof, logProof.Proof)
	return &MessageInclusionProof{
		ChainID:        new(big.Int).Set(chainID),
		L1BatchNumber:  batch,
		L2MessageIndex: logProof.ID,
		Root:           logProof.Root,
		Message:        msg,
		Proof:          proof,
	}, nil
}

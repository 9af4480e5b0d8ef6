package core

import (
	"context"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/metrics"
	"github.com/hyperledger-labs/interop-relayer/otelcore/semconv"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WaitForRoot polls the interop root registry of dst until the root of the
// source batch is registered.
//
// A registered root that differs from expectedRoot fails at once with ErrRootMismatch.
// A zero expectedRoot accepts any registered root. Read errors are retried until
// cfg.Timeout, whose expiry fails with ErrRootUnavailable.
func WaitForRoot(ctx context.Context, dst *ProvableChain, sourceChainID *big.Int, batchNumber uint64, expectedRoot common.Hash, cfg PollConfig) error {
	ctx, span := tracer.Start(ctx, "WaitForRoot",
		WithChainAttributes(dst.ChainID()),
		trace.WithAttributes(
			semconv.AttributeGroup("src", semconv.ChainIDKey.String(sourceChainID.String()))[0],
			semconv.BatchNumberKey.Int64(int64(batchNumber)),
		),
	)
	defer span.End()
	logger := GetChainLogger(dst.Chain)
	defer logger.TimeTrackContext(ctx, time.Now(), "WaitForRoot")
	cfg = cfg.withDefaults(DefaultPollInterval)

	var registered common.Hash
	var lastErr error
	err := pollUntil(ctx, cfg, func(ctx context.Context) (bool, error) {
		metrics.PollAttemptsCounter.Add(ctx, 1, api.WithAttributes(metrics.StageKey.String(string(StepRoot))))
		root, err := dst.QueryInteropRoot(ctx, sourceChainID, batchNumber)
		if err != nil {
			lastErr = err
			logger.WarnContext(ctx, "failed to query interop root", "batch_number", batchNumber, "error", err)
			return false, nil
		}
		lastErr = nil
		switch {
		case root == (common.Hash{}):
			logger.DebugContext(ctx, "interop root not registered yet", "batch_number", batchNumber)
			return false, nil
		case expectedRoot == (common.Hash{}):
			logger.WarnContext(ctx, "no expected root to compare with; accepting the registered root", "root", root.Hex())
			registered = root
			return true, nil
		case root == expectedRoot:
			registered = root
			return true, nil
		default:
			return false, withHint(
				errors.Wrapf(ErrRootMismatch, "root of chain %s batch %d is %s, expected %s", sourceChainID, batchNumber, root.Hex(), expectedRoot.Hex()),
				"check that the proof was fetched from the right source chain and batch",
			)
		}
	})
	if errors.Is(err, errPollDeadline) {
		err = errors.Wrapf(ErrRootUnavailable, "root of chain %s batch %d not registered on chain %s after %s", sourceChainID, batchNumber, dst.ChainID(), cfg.Timeout)
		if lastErr != nil {
			err = errors.WithSecondaryError(errors.Wrapf(err, "last query error: %v", lastErr), lastErr)
		}
		err = withHint(err, "roots are propagated after settlement; re-run wait-root later")
	}
	if err != nil {
		recordError(span, err)
		return newStepError(StepRoot, err, nil)
	}
	logger.InfoContext(ctx, "interop root available", "source_chain_id", sourceChainID.String(), "batch_number", batchNumber, "root", registered.Hex())
	return nil
}

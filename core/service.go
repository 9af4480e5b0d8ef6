package core

import (
	"context"
	"math/big"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/log"
)

// WatchEvent reports progress observed by a WatchService.
type WatchEvent struct {
	Event   string         `json:"event"`
	Details map[string]any `json:"details"`
}

const (
	EventFinalized     = "finalized"
	EventLogProof      = "log_proof"
	EventRootAvailable = "root_available"
	EventBundleStatus  = "bundle_status"
)

// WatchOptions configures a WatchService.
type WatchOptions struct {
	TxHash       common.Hash
	MessageIndex uint32
	Poll         PollConfig
	// Until is the bundle state that ends the watch. BundleUnreceived means any final state.
	Until BundleState
	// OnEvent receives the events in the order they are observed.
	OnEvent func(WatchEvent)
}

// StartWatch follows a sent bundle until it reaches opts.Until on dst.
func StartWatch(ctx context.Context, src, dst *ProvableChain, opts WatchOptions) error {
	srv := NewWatchService(src, dst, opts)
	return srv.Start(ctx)
}

// WatchService observes the progress of one bundle without changing any chain state.
type WatchService struct {
	src  *ProvableChain
	dst  *ProvableChain
	opts WatchOptions

	receipt       *Receipt
	bundleHash    *common.Hash
	sourceChainID *big.Int
	finalized     bool
	proof         *LogProof
	rootAvailable bool
	status        *BundleState
}

func NewWatchService(src, dst *ProvableChain, opts WatchOptions) *WatchService {
	if opts.OnEvent == nil {
		opts.OnEvent = func(WatchEvent) {}
	}
	opts.Poll = opts.Poll.withDefaults(DefaultPollInterval)
	return &WatchService{src: src, dst: dst, opts: opts}
}

// Start serves until the bundle reaches the target state or the timeout expires.
func (srv *WatchService) Start(ctx context.Context) error {
	logger := srv.logger()
	defer logger.TimeTrackContext(ctx, time.Now(), "WatchService.Start")

	err := pollUntil(ctx, srv.opts.Poll, func(ctx context.Context) (bool, error) {
		var done bool
		err := retry.Do(func() error {
			var err error
			done, err = srv.Serve(ctx)
			return err
		}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrRootMismatch)
		}), retry.OnRetry(func(n uint, err error) {
			logger.InfoContext(ctx,
				"retrying to watch bundle",
				"try", n+1,
				"try_limit", rtyAttNum,
				"error", err.Error(),
			)
		}))
		return done, err
	})
	if errors.Is(err, errPollDeadline) {
		return errors.Wrapf(ErrWatchTimedOut, "watch of %s timed out after %s", srv.opts.TxHash.Hex(), srv.opts.Poll.Timeout)
	}
	return err
}

// Serve performs one observation pass and reports whether the watch is complete.
func (srv *WatchService) Serve(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "WatchService.Serve", WithChainPairAttributes(srv.src, srv.dst), WithTxAttributes(srv.opts.TxHash))
	defer span.End()

	done, err := srv.serve(ctx)
	recordError(span, err)
	return done, err
}

func (srv *WatchService) serve(ctx context.Context) (bool, error) {
	if srv.receipt == nil {
		receipt, err := srv.src.QueryReceipt(ctx, srv.opts.TxHash)
		if err != nil {
			return false, err
		}
		if receipt == nil {
			return false, nil
		}
		srv.receipt = receipt
		if bundles, err := ExtractBundlesFromReceipt(receipt, srv.src.Contracts().InteropCenter); err == nil {
			srv.bundleHash = &bundles[0].BundleHash
		}
	}
	if srv.sourceChainID == nil {
		id, err := srv.src.QueryChainID(ctx)
		if err != nil {
			return false, err
		}
		srv.sourceChainID = id
	}

	if !srv.finalized {
		if height, err := srv.src.LatestFinalizedHeight(ctx); err == nil && height >= srv.receipt.BlockNumber {
			srv.finalized = true
			srv.emit(EventFinalized, map[string]any{"block": height})
		}
	}

	if srv.proof == nil {
		proof, err := srv.src.QueryLogProof(ctx, srv.opts.TxHash, srv.opts.MessageIndex)
		if err != nil {
			return false, err
		}
		if proof != nil {
			srv.proof = proof
			details := map[string]any{"id": proof.ID, "root": proof.Root.Hex()}
			if proof.BatchNumber != nil {
				details["batch"] = *proof.BatchNumber
			}
			srv.emit(EventLogProof, details)
		}
	}

	if srv.proof != nil && srv.proof.BatchNumber != nil && !srv.rootAvailable {
		batch := *srv.proof.BatchNumber
		root, err := srv.dst.QueryInteropRoot(ctx, srv.sourceChainID, batch)
		if err != nil {
			return false, err
		}
		switch root {
		case common.Hash{}:
		case srv.proof.Root:
			srv.rootAvailable = true
			srv.emit(EventRootAvailable, map[string]any{"root": root.Hex(), "batch": batch})
		default:
			return false, errors.Wrapf(ErrRootMismatch, "root of batch %d is %s, expected %s", batch, root.Hex(), srv.proof.Root.Hex())
		}
	}

	if srv.bundleHash == nil {
		return false, nil
	}
	state, err := srv.dst.QueryBundleStatus(ctx, *srv.bundleHash)
	if err != nil {
		return false, err
	}
	if srv.status == nil || *srv.status != state {
		srv.status = &state
		srv.emit(EventBundleStatus, map[string]any{"bundleHash": srv.bundleHash.Hex(), "status": state.String()})
	}
	return srv.reached(state), nil
}

func (srv *WatchService) reached(state BundleState) bool {
	switch srv.opts.Until {
	case BundleVerified:
		return state == BundleVerified || state == BundleFullyExecuted
	case BundleFullyExecuted:
		return state == BundleFullyExecuted
	default:
		return state == BundleFullyExecuted || state == BundleUnbundled
	}
}

func (srv *WatchService) emit(event string, details map[string]any) {
	srv.logger().Info("watch event", "event", event)
	srv.opts.OnEvent(WatchEvent{Event: event, Details: details})
}

func (srv *WatchService) logger() *log.RelayLogger {
	return log.GetLogger().WithChain(srv.src.ChainID(), srv.dst.ChainID()).WithModule("core.watch")
}

package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/otelcore/semconv"
	"github.com/hyperledger-labs/interop-relayer/signer"
	"go.opentelemetry.io/otel/trace"
)

// ProvableChain represents a chain that is supported by the relayer.
//
// It wraps primary methods of the Chain and Prover interfaces with tracing.
// This allows the relayer to provide tracing functionality without modifying module code.
//
// Modules can also add custom attributes to spans. For example, a module can add attributes
// in the QueryReceipt method as follows:
//
//	func (c *Chain) QueryReceipt(ctx context.Context, txHash common.Hash) (*core.Receipt, error) {
//		span := trace.SpanFromContext(ctx)
//		span.SetAttributes(semconv.TxHashKey.String(txHash.Hex()))
//
//		// -- snip --
//	}
type ProvableChain struct {
	Chain
	Prover
}

// NewProvableChain returns a new ProvableChain instance
func NewProvableChain(chain Chain, prover Prover) *ProvableChain {
	return &ProvableChain{Chain: chain, Prover: prover}
}

func (pc *ProvableChain) QueryChainID(ctx context.Context) (*big.Int, error) {
	ctx, span := tracer.Start(ctx, "Chain.QueryChainID",
		WithChainAttributes(pc.ChainID()),
		withPackage(pc.Chain),
	)
	defer span.End()

	id, err := pc.Chain.QueryChainID(ctx)
	recordError(span, err)
	return id, err
}

func (pc *ProvableChain) QueryCode(ctx context.Context, addr common.Address) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Chain.QueryCode",
		WithChainAttributes(pc.ChainID()),
		withPackage(pc.Chain),
	)
	defer span.End()

	code, err := pc.Chain.QueryCode(ctx, addr)
	recordError(span, err)
	return code, err
}

func (pc *ProvableChain) QueryReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "Chain.QueryReceipt",
		WithChainAttributes(pc.ChainID()),
		WithTxAttributes(txHash),
		withPackage(pc.Chain),
	)
	defer span.End()

	receipt, err := pc.Chain.QueryReceipt(ctx, txHash)
	recordError(span, err)
	return receipt, err
}

func (pc *ProvableChain) QueryInteropRoot(ctx context.Context, sourceChainID *big.Int, batchNumber uint64) (common.Hash, error) {
	ctx, span := tracer.Start(ctx, "Chain.QueryInteropRoot",
		WithChainAttributes(pc.ChainID()),
		trace.WithAttributes(
			semconv.AttributeGroup("src", semconv.ChainIDKey.String(sourceChainID.String()))[0],
			semconv.BatchNumberKey.Int64(int64(batchNumber)),
		),
		withPackage(pc.Chain),
	)
	defer span.End()

	root, err := pc.Chain.QueryInteropRoot(ctx, sourceChainID, batchNumber)
	recordError(span, err)
	return root, err
}

func (pc *ProvableChain) QueryBundleStatus(ctx context.Context, bundleHash common.Hash) (BundleState, error) {
	ctx, span := tracer.Start(ctx, "Chain.QueryBundleStatus",
		WithChainAttributes(pc.ChainID()),
		WithBundleAttributes(bundleHash),
		withPackage(pc.Chain),
	)
	defer span.End()

	state, err := pc.Chain.QueryBundleStatus(ctx, bundleHash)
	recordError(span, err)
	return state, err
}

func (pc *ProvableChain) QueryCallStatus(ctx context.Context, bundleHash common.Hash, callIndex int) (CallStatus, error) {
	ctx, span := tracer.Start(ctx, "Chain.QueryCallStatus",
		WithChainAttributes(pc.ChainID()),
		WithBundleAttributes(bundleHash),
		withPackage(pc.Chain),
	)
	defer span.End()

	status, err := pc.Chain.QueryCallStatus(ctx, bundleHash, callIndex)
	recordError(span, err)
	return status, err
}

func (pc *ProvableChain) SimulateBundle(ctx context.Context, action BundleAction, encodedBundle []byte, proof *MessageInclusionProof, from *common.Address) error {
	ctx, span := tracer.Start(ctx, "Chain.SimulateBundle",
		WithChainAttributes(pc.ChainID()),
		trace.WithAttributes(semconv.ModeKey.String(string(action))),
		withPackage(pc.Chain),
	)
	defer span.End()

	err := pc.Chain.SimulateBundle(ctx, action, encodedBundle, proof, from)
	recordError(span, err)
	return err
}

func (pc *ProvableChain) SubmitBundle(ctx context.Context, action BundleAction, encodedBundle []byte, proof *MessageInclusionProof, s signer.Signer) (common.Hash, error) {
	ctx, span := tracer.Start(ctx, "Chain.SubmitBundle",
		WithChainAttributes(pc.ChainID()),
		trace.WithAttributes(semconv.ModeKey.String(string(action))),
		withPackage(pc.Chain),
	)
	defer span.End()

	txHash, err := pc.Chain.SubmitBundle(ctx, action, encodedBundle, proof, s)
	recordError(span, err)
	return txHash, err
}

func (pc *ProvableChain) LatestFinalizedHeight(ctx context.Context) (uint64, error) {
	ctx, span := tracer.Start(ctx, "Prover.LatestFinalizedHeight",
		WithChainAttributes(pc.ChainID()),
		withPackage(pc.Prover),
	)
	defer span.End()

	height, err := pc.Prover.LatestFinalizedHeight(ctx)
	recordError(span, err)
	return height, err
}

func (pc *ProvableChain) QueryLogProof(ctx context.Context, txHash common.Hash, msgIndex uint32) (*LogProof, error) {
	ctx, span := tracer.Start(ctx, "Prover.QueryLogProof",
		WithChainAttributes(pc.ChainID()),
		WithTxAttributes(txHash),
		trace.WithAttributes(semconv.MessageIndexKey.Int64(int64(msgIndex))),
		withPackage(pc.Prover),
	)
	defer span.End()

	proof, err := pc.Prover.QueryLogProof(ctx, txHash, msgIndex)
	recordError(span, err)
	return proof, err
}

package otelcore

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/hyperledger-labs/interop-relayer/otelcore/semconv"
	"github.com/hyperledger-labs/interop-relayer/signer"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Chain records the calls of a chain module with the tracer of that module.
type Chain struct {
	core.Chain
	tracer trace.Tracer
}

func NewChain(chain core.Chain, tracer trace.Tracer) core.Chain {
	return &Chain{
		Chain:  chain,
		tracer: tracer,
	}
}

func UnwrapChain(chain core.Chain) (core.Chain, error) {
	c, ok := chain.(*Chain)
	if !ok {
		return nil, fmt.Errorf("chain type is not %T, but %T", &Chain{}, chain)
	}
	return c.Chain, nil
}

func (c *Chain) QueryInteropRoot(ctx context.Context, sourceChainID *big.Int, batchNumber uint64) (common.Hash, error) {
	ctx, span := c.tracer.Start(ctx, "Chain.QueryInteropRoot",
		core.WithChainAttributes(c.ChainID()),
		trace.WithAttributes(semconv.BatchNumberKey.Int64(int64(batchNumber))),
	)
	defer span.End()

	root, err := c.Chain.QueryInteropRoot(ctx, sourceChainID, batchNumber)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return root, err
}

func (c *Chain) SimulateBundle(ctx context.Context, action core.BundleAction, encodedBundle []byte, proof *core.MessageInclusionProof, from *common.Address) error {
	ctx, span := c.tracer.Start(ctx, "Chain.SimulateBundle",
		core.WithChainAttributes(c.ChainID()),
		trace.WithAttributes(semconv.ModeKey.String(string(action))),
	)
	defer span.End()

	err := c.Chain.SimulateBundle(ctx, action, encodedBundle, proof, from)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Chain) SubmitBundle(ctx context.Context, action core.BundleAction, encodedBundle []byte, proof *core.MessageInclusionProof, s signer.Signer) (common.Hash, error) {
	ctx, span := c.tracer.Start(ctx, "Chain.SubmitBundle",
		core.WithChainAttributes(c.ChainID()),
		trace.WithAttributes(semconv.ModeKey.String(string(action))),
	)
	defer span.End()

	txHash, err := c.Chain.SubmitBundle(ctx, action, encodedBundle, proof, s)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(semconv.TxHashKey.String(txHash.Hex()))
	}
	return txHash, err
}

package otelcore

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/hyperledger-labs/interop-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Prover records the calls of a prover module with the tracer of that module.
type Prover struct {
	core.Prover
	chainID string
	tracer  trace.Tracer
}

func NewProver(prover core.Prover, chainID string, tracer trace.Tracer) core.Prover {
	return &Prover{
		Prover:  prover,
		chainID: chainID,
		tracer:  tracer,
	}
}

func UnwrapProver(prover core.Prover) (core.Prover, error) {
	p, ok := prover.(*Prover)
	if !ok {
		return nil, fmt.Errorf("prover type is not %T, but %T", &Prover{}, prover)
	}
	return p.Prover, nil
}

func (p *Prover) LatestFinalizedHeight(ctx context.Context) (uint64, error) {
	ctx, span := p.tracer.Start(ctx, "Prover.LatestFinalizedHeight",
		core.WithChainAttributes(p.chainID),
	)
	defer span.End()

	height, err := p.Prover.LatestFinalizedHeight(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int64("finalized_height", int64(height)))
	}
	return height, err
}

func (p *Prover) QueryLogProof(ctx context.Context, txHash common.Hash, msgIndex uint32) (*core.LogProof, error) {
	ctx, span := p.tracer.Start(ctx, "Prover.QueryLogProof",
		core.WithChainAttributes(p.chainID),
		core.WithTxAttributes(txHash),
		trace.WithAttributes(semconv.MessageIndexKey.Int64(int64(msgIndex))),
	)
	defer span.End()

	proof, err := p.Prover.QueryLogProof(ctx, txHash, msgIndex)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Bool("indexed", proof != nil))
	}
	return proof, err
}

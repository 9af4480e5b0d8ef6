package ethereum

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/hyperledger-labs/interop-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel/trace"
)

// logProofMethods are tried in order; the first is served by current nodes.
var logProofMethods = []string{"zks_getL2ToL1LogProof", "zks_getLogProof", "getLogProof"}

// LatestFinalizedHeight returns the number of the latest finalized block
func (c *Chain) LatestFinalizedHeight(ctx context.Context) (uint64, error) {
	head, err := c.header(ctx, "finalized")
	if err != nil {
		return 0, err
	}
	return uint64(head.Number), nil
}

// QueryLogProof returns the proof of the msgIndex-th L2->L1 message of txHash,
// or nil if the node has not indexed it yet.
func (c *Chain) QueryLogProof(ctx context.Context, txHash common.Hash, msgIndex uint32) (*core.LogProof, error) {
	trace.SpanFromContext(ctx).SetAttributes(semconv.MessageIndexKey.Int(int(msgIndex)))

	var errs []error
	for _, method := range logProofMethods {
		var p *rpcLogProof
		err := c.rpc.CallContext(ctx, &p, method, txHash, msgIndex)
		if err == nil {
			if p == nil {
				return nil, nil
			}
			return p.toCore(), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger().DebugContext(ctx, "log proof method failed", "method", method, "error", err)
		errs = append(errs, errors.Wrap(err, method))
	}
	return nil, errors.Wrapf(errors.Join(errs...), "failed to query log proof of %s", txHash)
}

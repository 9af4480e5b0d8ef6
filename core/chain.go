package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/signer"
)

// Chain represents a chain that supports querying interop state and
// submitting bundles to its interop handler.
type Chain interface {
	// ChainID returns the configured ID of the chain
	ChainID() string

	// Contracts returns the system contract addresses configured for the chain
	Contracts() SystemContracts

	// QueryChainID returns the chain ID reported by the endpoint
	QueryChainID(ctx context.Context) (*big.Int, error)

	// QueryCode returns the code deployed at addr; empty if none
	QueryCode(ctx context.Context, addr common.Address) ([]byte, error)

	// QueryReceipt returns the receipt of a transaction, or nil if it is not known yet
	QueryReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)

	// QueryInteropRoot returns the root registered for a source batch; zero if none
	QueryInteropRoot(ctx context.Context, sourceChainID *big.Int, batchNumber uint64) (common.Hash, error)

	// QueryBundleStatus returns the handler's processing state of a bundle
	QueryBundleStatus(ctx context.Context, bundleHash common.Hash) (BundleState, error)

	// QueryCallStatus returns the handler's processing state of one call
	QueryCallStatus(ctx context.Context, bundleHash common.Hash, callIndex int) (CallStatus, error)

	// SimulateBundle runs the handler call without broadcasting. A revert is returned as *RevertError.
	SimulateBundle(ctx context.Context, action BundleAction, encodedBundle []byte, proof *MessageInclusionProof, from *common.Address) error

	// SubmitBundle signs and broadcasts the handler call and returns the transaction hash.
	// A revert detected before broadcasting is returned as *RevertError.
	SubmitBundle(ctx context.Context, action BundleAction, encodedBundle []byte, proof *MessageInclusionProof, s signer.Signer) (common.Hash, error)
}

// Prover provides finality and inclusion proofs of a source chain.
type Prover interface {
	// LatestFinalizedHeight returns the number of the latest finalized block
	LatestFinalizedHeight(ctx context.Context) (uint64, error)

	// QueryLogProof returns the inclusion proof of an L2->L1 message, or nil
	// if the message is not indexed yet
	QueryLogProof(ctx context.Context, txHash common.Hash, msgIndex uint32) (*LogProof, error)
}

package ethereum

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hyperledger-labs/interop-relayer/core"
)

// rpcReceipt is a transaction receipt including the batch fields reported by
// nodes that settle in batches.
type rpcReceipt struct {
	TxHash           common.Hash     `json:"transactionHash"`
	BlockNumber      *hexutil.Big    `json:"blockNumber"`
	TransactionIndex hexutil.Uint64  `json:"transactionIndex"`
	Status           hexutil.Uint64  `json:"status"`
	Logs             []*types.Log    `json:"logs"`
	L1BatchNumber    *hexutil.Uint64 `json:"l1BatchNumber"`
	L1BatchTxIndex   *hexutil.Uint64 `json:"l1BatchTxIndex"`
}

func (r *rpcReceipt) toCore() (*core.Receipt, error) {
	// pending receipts carry no block number
	if r.BlockNumber == nil {
		return nil, nil
	}
	bn := r.BlockNumber.ToInt()
	if !bn.IsUint64() {
		return nil, errors.Newf("block number out of range: %s", bn)
	}
	receipt := &core.Receipt{
		TxHash:           r.TxHash,
		BlockNumber:      bn.Uint64(),
		TransactionIndex: uint64(r.TransactionIndex),
		Status:           uint64(r.Status),
		Logs:             r.Logs,
	}
	if r.L1BatchNumber != nil {
		v := uint64(*r.L1BatchNumber)
		receipt.L1BatchNumber = &v
	}
	if r.L1BatchTxIndex != nil {
		v := uint64(*r.L1BatchTxIndex)
		receipt.L1BatchTxIndex = &v
	}
	return receipt, nil
}

// rpcLogProof is the result of zks_getL2ToL1LogProof-style proof queries.
type rpcLogProof struct {
	ID          uint64        `json:"id"`
	Proof       []common.Hash `json:"proof"`
	Root        common.Hash   `json:"root"`
	BatchNumber *uint64       `json:"batch_number,omitempty"`
}

func (p *rpcLogProof) toCore() *core.LogProof {
	return &core.LogProof{
		ID:          p.ID,
		Proof:       p.Proof,
		Root:        p.Root,
		BatchNumber: p.BatchNumber,
	}
}

// rpcHeader holds the header fields the relayer reads.
type rpcHeader struct {
	Number  hexutil.Uint64 `json:"number"`
	BaseFee *hexutil.Big   `json:"baseFeePerGas"`
}

// revertFromError extracts the revert payload carried by a JSON-RPC error.
// It returns nil when err is not a revert.
func revertFromError(err error) *core.RevertError {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}
	var data []byte
	switch v := dataErr.ErrorData().(type) {
	case string:
		bz, derr := hexutil.Decode(v)
		if derr != nil {
			return nil
		}
		data = bz
	case nil:
		if !strings.Contains(strings.ToLower(dataErr.Error()), "revert") {
			return nil
		}
	default:
		return nil
	}
	rerr := core.NewRevertError(data)
	if rerr.Reason == "" {
		rerr.Reason = dataErr.Error()
	}
	return rerr
}

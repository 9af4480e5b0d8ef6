package core

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Receipt is the subset of a source or destination receipt the relayer needs.
type Receipt struct {
	TxHash           common.Hash
	BlockNumber      uint64
	TransactionIndex uint64
	// L1BatchNumber and L1BatchTxIndex are reported by nodes that settle in batches.
	L1BatchNumber  *uint64
	L1BatchTxIndex *uint64
	Status         uint64
	Logs           []*types.Log
}

// TxNumberInBatch returns the position of the transaction inside its batch.
func (r *Receipt) TxNumberInBatch() uint64 {
	if r.L1BatchTxIndex != nil {
		return *r.L1BatchTxIndex
	}
	return r.TransactionIndex
}

// Succeeded reports whether the transaction did not revert.
func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

// LogProof is the raw inclusion proof returned by the source chain.
type LogProof struct {
	ID          uint64
	Proof       []common.Hash
	Root        common.Hash
	BatchNumber *uint64
}

// InclusionMessage is the logged L2->L1 message proven by a MessageInclusionProof.
type InclusionMessage struct {
	TxNumberInBatch uint16
	Sender          common.Address
	Data            []byte
}

// MessageInclusionProof proves that a message was included in a source batch.
type MessageInclusionProof struct {
	ChainID        *big.Int
	L1BatchNumber  uint64
	L2MessageIndex uint64
	// Root is the batch root the proof resolves to; the destination must have it registered.
	Root    common.Hash
	Message InclusionMessage
	Proof   []common.Hash
}

type inclusionMessageJSON struct {
	TxNumberInBatch uint16         `json:"txNumberInBatch"`
	Sender          common.Address `json:"sender"`
	Data            hexutil.Bytes  `json:"data"`
}

type messageInclusionProofJSON struct {
	ChainID        string               `json:"chainId"`
	L1BatchNumber  uint64               `json:"l1BatchNumber"`
	L2MessageIndex uint64               `json:"l2MessageIndex"`
	Root           common.Hash          `json:"root"`
	Message        inclusionMessageJSON `json:"message"`
	Proof          []common.Hash        `json:"proof"`
}

func (p MessageInclusionProof) MarshalJSON() ([]byte, error) {
	proof := p.Proof
	if proof == nil {
		proof = []common.Hash{}
	}
	return json.Marshal(messageInclusionProofJSON{
		ChainID:        bigOrZero(p.ChainID).String(),
		L1BatchNumber:  p.L1BatchNumber,
		L2MessageIndex: p.L2MessageIndex,
		Root:           p.Root,
		Message: inclusionMessageJSON{
			TxNumberInBatch: p.Message.TxNumberInBatch,
			Sender:          p.Message.Sender,
			Data:            nonNil(p.Message.Data),
		},
		Proof: proof,
	})
}

func (p *MessageInclusionProof) UnmarshalJSON(bz []byte) error {
	var v messageInclusionProofJSON
	if err := json.Unmarshal(bz, &v); err != nil {
		return err
	}
	chainID, ok := new(big.Int).SetString(v.ChainID, 10)
	if !ok {
		return errors.Newf("invalid chainId %q", v.ChainID)
	}
	*p = MessageInclusionProof{
		ChainID:        chainID,
		L1BatchNumber:  v.L1BatchNumber,
		L2MessageIndex: v.L2MessageIndex,
		Root:           v.Root,
		Message: InclusionMessage{
			TxNumberInBatch: v.Message.TxNumberInBatch,
			Sender:          v.Message.Sender,
			Data:            v.Message.Data,
		},
		Proof: v.Proof,
	}
	return nil
}

// solMessageInclusionProof mirrors the MessageInclusionProof tuple of the handler ABI.
type solMessageInclusionProof struct {
	ChainId        *big.Int
	L1BatchNumber  *big.Int
	L2MessageIndex *big.Int
	Message        solL2Message
	Proof          [][32]byte
}

type solL2Message struct {
	TxNumberInBatch uint16
	Sender          common.Address
	Data            []byte
}

func (p *MessageInclusionProof) toSol() solMessageInclusionProof {
	nodes := make([][32]byte, len(p.Proof))
	for i, n := range p.Proof {
		nodes[i] = n
	}
	return solMessageInclusionProof{
		ChainId:        bigOrZero(p.ChainID),
		L1BatchNumber:  new(big.Int).SetUint64(p.L1BatchNumber),
		L2MessageIndex: new(big.Int).SetUint64(p.L2MessageIndex),
		Message: solL2Message{
			TxNumberInBatch: p.Message.TxNumberInBatch,
			Sender:          p.Message.Sender,
			Data:            nonNil(p.Message.Data),
		},
		Proof: nodes,
	}
}

// Normalized returns a copy whose message commits to the given bundle as sent
// by the interop center.
func (p *MessageInclusionProof) Normalized(center common.Address, encodedBundle []byte) *MessageInclusionProof {
	out := *p
	out.Message.Sender = center
	out.Message.Data = MessageData(encodedBundle)
	return &out
}

// BundleAction selects the handler entrypoint.
type BundleAction string

const (
	ActionVerify  BundleAction = "verify"
	ActionExecute BundleAction = "execute"
)

func (a BundleAction) Validate() error {
	switch a {
	case ActionVerify, ActionExecute:
		return nil
	default:
		return errors.Newf("invalid mode %q (expected verify or execute)", string(a))
	}
}

func (a BundleAction) method() string {
	if a == ActionVerify {
		return "verifyBundle"
	}
	return "executeBundle"
}

// PackBundleCall builds handler calldata for the given action.
func PackBundleCall(action BundleAction, encodedBundle []byte, proof *MessageInclusionProof) ([]byte, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}
	return InteropABI.Pack(action.method(), encodedBundle, proof.toSol())
}

// BundleState is the on-chain processing state of a bundle on its destination.
type BundleState uint8

const (
	BundleUnreceived BundleState = iota
	BundleVerified
	BundleFullyExecuted
	BundleUnbundled
	// BundleFailed is never reported by the chain; it marks a reverted submission.
	BundleFailed BundleState = 0xff
)

func (s BundleState) String() string {
	switch s {
	case BundleUnreceived:
		return "Unreceived"
	case BundleVerified:
		return "Verified"
	case BundleFullyExecuted:
		return "FullyExecuted"
	case BundleUnbundled:
		return "Unbundled"
	case BundleFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

func (s BundleState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Processed reports whether action has already taken effect in this state.
func (s BundleState) Processed(action BundleAction) bool {
	switch s {
	case BundleFullyExecuted, BundleUnbundled:
		return true
	case BundleVerified:
		return action == ActionVerify
	default:
		return false
	}
}

// BundleStatus is the destination view of a bundle. It is always read from the
// chain or from a receipt, never stored as a source of truth.
type BundleStatus struct {
	State  BundleState `json:"state"`
	Reason string      `json:"reason,omitempty"`
}

// CallStatus is the destination processing state of one call.
type CallStatus uint8

const (
	CallUnprocessed CallStatus = iota
	CallExecuted
	CallCancelled
)

func (s CallStatus) String() string {
	switch s {
	case CallUnprocessed:
		return "Unprocessed"
	case CallExecuted:
		return "Executed"
	case CallCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

func (s CallStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// CallOutcome is the status of one call after a submission.
type CallOutcome struct {
	Index  int         `json:"index"`
	SendID common.Hash `json:"sendId"`
	Status CallStatus  `json:"status"`
}

// SystemContracts are the per-chain addresses of the interop system contracts.
type SystemContracts struct {
	InteropCenter      common.Address
	InteropHandler     common.Address
	InteropRootStorage common.Address
}

// Validate rejects unset addresses.
func (s SystemContracts) Validate() error {
	for _, c := range []struct {
		name string
		addr common.Address
	}{
		{"interopCenter", s.InteropCenter},
		{"interopHandler", s.InteropHandler},
		{"interopRootStorage", s.InteropRootStorage},
	} {
		if c.addr == (common.Address{}) {
			return errors.Wrapf(ErrUntrustedConfiguration, "%s address is not configured", c.name)
		}
	}
	return nil
}

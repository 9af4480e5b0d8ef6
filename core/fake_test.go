package core

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hyperledger-labs/interop-relayer/signer"
	"github.com/stretchr/testify/require"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testSourceChainID      = big.NewInt(6565)
	testDestinationChainID = big.NewInt(6566)

	testContracts = SystemContracts{
		InteropCenter:      common.HexToAddress("0x0000000000000000000000000000000000010010"),
		InteropHandler:     common.HexToAddress("0x000000000000000000000000000000000001000d"),
		InteropRootStorage: common.HexToAddress("0x0000000000000000000000000000000000010008"),
	}

	testTxHash     = common.HexToHash("0x5f0c000000000000000000000000000000000000000000000000000000a1b2")
	testHandlerTx  = common.HexToHash("0x7a7a000000000000000000000000000000000000000000000000000000beef")
	testRoot       = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	testBatch      = uint64(42)
	testBlock      = uint64(100)
	testBatchIndex = uint64(3)
)

// fakeChain implements Chain and Prover in memory.
type fakeChain struct {
	mu sync.Mutex

	id        string
	chainID   *big.Int
	chainErr  error
	contracts SystemContracts

	code    map[common.Address][]byte
	codeErr error

	receipts     map[common.Hash]*Receipt
	receiptCalls int

	finalized uint64

	logProof      *LogProof
	logProofErr   error
	logProofAfter int
	logProofCalls int

	roots   map[uint64]common.Hash
	rootErr error
	// rootErrTimes limits rootErr to the first calls; zero fails every call
	rootErrTimes int
	rootAfter    int
	rootCalls    int
	bundleStat   map[common.Hash]BundleState
	callStat     CallStatus

	simulateErr error
	submitErr   error
	submitHash  common.Hash
	// submitReceipt is the status of the receipt recorded for a submission; nil records none
	submitReceipt *uint64
	submitted     int
}

var (
	_ Chain  = (*fakeChain)(nil)
	_ Prover = (*fakeChain)(nil)
)

func newFakeChain(id string, chainID *big.Int) *fakeChain {
	return &fakeChain{
		id:        id,
		chainID:   chainID,
		contracts: testContracts,
		receipts:  map[common.Hash]*Receipt{},
		code: map[common.Address][]byte{
			testContracts.InteropCenter:      {0x60, 0x80},
			testContracts.InteropHandler:     {0x60, 0x80},
			testContracts.InteropRootStorage: {0x60, 0x80},
		},
		roots:      map[uint64]common.Hash{},
		bundleStat: map[common.Hash]BundleState{},
		submitHash: testHandlerTx,
	}
}

func (c *fakeChain) provable() *ProvableChain { return NewProvableChain(c, c) }

func (c *fakeChain) ChainID() string            { return c.id }
func (c *fakeChain) Contracts() SystemContracts { return c.contracts }

func (c *fakeChain) QueryChainID(ctx context.Context) (*big.Int, error) {
	return c.chainID, c.chainErr
}

func (c *fakeChain) QueryCode(ctx context.Context, addr common.Address) ([]byte, error) {
	return c.code[addr], c.codeErr
}

func (c *fakeChain) QueryReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiptCalls++
	return c.receipts[txHash], nil
}

func (c *fakeChain) QueryInteropRoot(ctx context.Context, sourceChainID *big.Int, batchNumber uint64) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rootCalls++
	if c.rootErr != nil && (c.rootErrTimes == 0 || c.rootCalls <= c.rootErrTimes) {
		return common.Hash{}, c.rootErr
	}
	if c.rootCalls <= c.rootAfter {
		return common.Hash{}, nil
	}
	return c.roots[batchNumber], nil
}

func (c *fakeChain) QueryBundleStatus(ctx context.Context, bundleHash common.Hash) (BundleState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bundleStat[bundleHash], nil
}

func (c *fakeChain) QueryCallStatus(ctx context.Context, bundleHash common.Hash, callIndex int) (CallStatus, error) {
	return c.callStat, nil
}

func (c *fakeChain) SimulateBundle(ctx context.Context, action BundleAction, encodedBundle []byte, proof *MessageInclusionProof, from *common.Address) error {
	return c.simulateErr
}

func (c *fakeChain) SubmitBundle(ctx context.Context, action BundleAction, encodedBundle []byte, proof *MessageInclusionProof, s signer.Signer) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return common.Hash{}, c.submitErr
	}
	c.submitted++
	if c.submitReceipt != nil {
		c.receipts[c.submitHash] = &Receipt{TxHash: c.submitHash, Status: *c.submitReceipt}
		if *c.submitReceipt == types.ReceiptStatusSuccessful {
			bundle, err := DecodeBundle(encodedBundle)
			if err == nil {
				hash, _ := bundle.ContentHash()
				if action == ActionVerify {
					c.bundleStat[hash] = BundleVerified
				} else {
					c.bundleStat[hash] = BundleFullyExecuted
				}
			}
		}
	}
	return c.submitHash, nil
}

func (c *fakeChain) LatestFinalizedHeight(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized, nil
}

func (c *fakeChain) QueryLogProof(ctx context.Context, txHash common.Hash, msgIndex uint32) (*LogProof, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logProofCalls++
	if c.logProofErr != nil {
		return nil, c.logProofErr
	}
	if c.logProofCalls <= c.logProofAfter {
		return nil, nil
	}
	return c.logProof, nil
}

func receiptStatus(s uint64) *uint64 { return &s }

func testBundle() *InteropBundle {
	return &InteropBundle{
		Version:            BundleVersion,
		SourceChainID:      testSourceChainID,
		DestinationChainID: testDestinationChainID,
		Salt:               common.HexToHash("0x0102"),
		Calls: []InteropCall{
			{
				Version: CallVersion,
				To:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
				From:    common.HexToAddress("0x00000000000000000000000000000000000000bb"),
				Value:   big.NewInt(0),
				Data:    []byte{0xde, 0xad, 0xbe, 0xef},
			},
		},
	}
}

// bundleSentLog builds the InteropBundleSent log of b, hashed by content.
func bundleSentLog(t *testing.T, b *InteropBundle, index uint) (*types.Log, common.Hash) {
	t.Helper()
	hash, err := b.ContentHash()
	require.NoError(t, err)
	msgHash := crypto.Keccak256Hash(hash.Bytes())
	data, err := bundleSentArguments.Pack([32]byte(msgHash), [32]byte(hash), b.toSol())
	require.NoError(t, err)
	return &types.Log{
		Address: testContracts.InteropCenter,
		Topics:  []common.Hash{InteropBundleSentTopic},
		Data:    data,
		Index:   index,
	}, hash
}

func messageSentLog(t *testing.T, sendID common.Hash, attrs [][]byte, index uint) *types.Log {
	t.Helper()
	data, err := messageSentArguments.Pack([]byte{}, []byte{}, []byte{}, big.NewInt(0), attrs)
	require.NoError(t, err)
	return &types.Log{
		Address: testContracts.InteropCenter,
		Topics:  []common.Hash{MessageSentTopic, sendID},
		Data:    data,
		Index:   index,
	}
}

// newRelayFixture returns a source chain that sent testBundle in testTxHash and is
// ready to prove it, and a destination chain with the root registered.
func newRelayFixture(t *testing.T) (src, dst *fakeChain, bundleHash common.Hash) {
	t.Helper()
	src = newFakeChain("source", testSourceChainID)
	dst = newFakeChain("destination", testDestinationChainID)

	l, hash := bundleSentLog(t, testBundle(), 0)
	batch, idx := testBatch, testBatchIndex
	src.receipts[testTxHash] = &Receipt{
		TxHash:         testTxHash,
		BlockNumber:    testBlock,
		L1BatchNumber:  &batch,
		L1BatchTxIndex: &idx,
		Status:         types.ReceiptStatusSuccessful,
		Logs:           []*types.Log{l},
	}
	src.finalized = testBlock
	src.logProof = &LogProof{
		ID:          7,
		Proof:       []common.Hash{common.HexToHash("0xaa"), common.HexToHash("0xbb")},
		Root:        testRoot,
		BatchNumber: &batch,
	}
	dst.roots[testBatch] = testRoot
	dst.submitReceipt = receiptStatus(types.ReceiptStatusSuccessful)
	return src, dst, hash
}

func testSigner(t *testing.T) *signer.PrivateKeySigner {
	t.Helper()
	s, err := signer.NewPrivateKeySigner(testKey)
	require.NoError(t, err)
	return s
}

func revertData(t *testing.T, name string, args ...interface{}) []byte {
	t.Helper()
	abiErr, ok := InteropABI.Errors[name]
	require.True(t, ok, name)
	data, err := abiErr.Inputs.Pack(args...)
	require.NoError(t, err)
	return append(common.CopyBytes(abiErr.ID[:4]), data...)
}

func mustEncodeAddress(chainID *big.Int, addr *common.Address) []byte {
	bz, err := EncodeInteroperableAddress(chainID, addr)
	if err != nil {
		panic(err)
	}
	return bz
}

package ethereum

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/hyperledger-labs/interop-relayer/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *rpcError) Error() string { return e.Message }

// errHTTP makes the fake node answer with a gateway error instead of a JSON-RPC response.
var errHTTP = errors.New("bad gateway")

type rpcHandler func(params []json.RawMessage) (interface{}, error)

// fakeNode is a JSON-RPC endpoint serving canned responses per method.
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    map[string]int
}

func newFakeNode(t *testing.T) (*fakeNode, string) {
	n := &fakeNode{handlers: map[string]rpcHandler{}, calls: map[string]int{}}
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	return n, srv.URL
}

func (n *fakeNode) handle(method string, h rpcHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

func (n *fakeNode) result(method string, v interface{}) {
	n.handle(method, func([]json.RawMessage) (interface{}, error) { return v, nil })
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls[req.Method]++
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = &rpcError{Code: -32601, Message: "the method " + req.Method + " does not exist/is not available"}
	} else if res, err := h(req.Params); errors.Is(err, errHTTP) {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	} else if err != nil {
		resp["error"] = err
	} else {
		resp["result"] = res
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func testChain(t *testing.T) (*Chain, *fakeNode) {
	t.Helper()
	node, url := newFakeNode(t)
	cfg := ChainConfig{Name: "era", ChainId: "6565", RpcAddr: url, Addresses: DefaultAddresses()}
	chain, err := cfg.Build()
	require.NoError(t, err)
	t.Cleanup(chain.Close)
	return chain, node
}

// callInput returns the calldata and target of an eth_call or eth_estimateGas request.
func callInput(t *testing.T, params []json.RawMessage) (common.Address, []byte) {
	var arg struct {
		To    common.Address `json:"to"`
		Input hexutil.Bytes  `json:"input"`
		Data  hexutil.Bytes  `json:"data"`
	}
	require.NoError(t, json.Unmarshal(params[0], &arg))
	if len(arg.Input) > 0 {
		return arg.To, arg.Input
	}
	return arg.To, arg.Data
}

func revertWith(t *testing.T, name string) *rpcError {
	e, ok := core.InteropABI.Errors[name]
	require.True(t, ok, name)
	return &rpcError{Code: 3, Message: "execution reverted", Data: hexutil.Encode(e.ID[:4])}
}

func testProof() *core.MessageInclusionProof {
	return &core.MessageInclusionProof{
		ChainID:        big.NewInt(6565),
		L1BatchNumber:  42,
		L2MessageIndex: 7,
		Root:           common.HexToHash("0x11"),
		Message: core.InclusionMessage{
			TxNumberInBatch: 3,
			Sender:          common.HexToAddress(DefaultInteropCenter),
			Data:            []byte{0x01, 0x02},
		},
		Proof: []common.Hash{common.HexToHash("0xaa")},
	}
}

func TestQueryReceipt(t *testing.T) {
	chain, node := testChain(t)
	txHash := common.HexToHash("0xabc")
	node.result("eth_getTransactionReceipt", map[string]interface{}{
		"transactionHash":  txHash,
		"blockNumber":      "0x64",
		"transactionIndex": "0x1",
		"status":           "0x1",
		"l1BatchNumber":    "0x2a",
		"l1BatchTxIndex":   "0x3",
		"logs": []map[string]interface{}{{
			"address":          DefaultInteropCenter,
			"topics":           []common.Hash{core.InteropBundleSentTopic},
			"data":             "0x",
			"blockNumber":      "0x64",
			"transactionHash":  txHash,
			"transactionIndex": "0x1",
			"blockHash":        common.HexToHash("0xb1"),
			"logIndex":         "0x0",
			"removed":          false,
		}},
	})

	r, err := chain.QueryReceipt(context.Background(), txHash)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, txHash, r.TxHash)
	assert.Equal(t, uint64(100), r.BlockNumber)
	assert.True(t, r.Succeeded())
	require.NotNil(t, r.L1BatchNumber)
	assert.Equal(t, uint64(42), *r.L1BatchNumber)
	assert.Equal(t, uint64(3), r.TxNumberInBatch())
	require.Len(t, r.Logs, 1)
	assert.Equal(t, core.InteropBundleSentTopic, r.Logs[0].Topics[0])

	t.Run("unknown", func(t *testing.T) {
		node.result("eth_getTransactionReceipt", nil)
		r, err := chain.QueryReceipt(context.Background(), txHash)
		require.NoError(t, err)
		assert.Nil(t, r)
	})
	t.Run("without batch fields", func(t *testing.T) {
		node.result("eth_getTransactionReceipt", map[string]interface{}{
			"transactionHash":  txHash,
			"blockNumber":      "0x64",
			"transactionIndex": "0x5",
			"status":           "0x0",
			"l1BatchNumber":    nil,
			"logs":             []interface{}{},
		})
		r, err := chain.QueryReceipt(context.Background(), txHash)
		require.NoError(t, err)
		assert.Nil(t, r.L1BatchNumber)
		assert.Equal(t, uint64(5), r.TxNumberInBatch())
		assert.False(t, r.Succeeded())
	})
}

func TestLatestFinalizedHeight(t *testing.T) {
	chain, node := testChain(t)
	node.handle("eth_getBlockByNumber", func(params []json.RawMessage) (interface{}, error) {
		var tag string
		if err := json.Unmarshal(params[0], &tag); err != nil || tag != "finalized" {
			return nil, &rpcError{Code: -32602, Message: "unexpected block tag"}
		}
		return map[string]interface{}{"number": "0x64"}, nil
	})

	h, err := chain.LatestFinalizedHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), h)

	node.result("eth_getBlockByNumber", nil)
	_, err = chain.LatestFinalizedHeight(context.Background())
	assert.Error(t, err)
}

func TestQueryLogProof(t *testing.T) {
	txHash := common.HexToHash("0xabc")
	proof := map[string]interface{}{
		"id":    7,
		"proof": []common.Hash{common.HexToHash("0xaa"), common.HexToHash("0xbb")},
		"root":  common.HexToHash("0x11"),
	}

	t.Run("current method", func(t *testing.T) {
		chain, node := testChain(t)
		node.result("zks_getL2ToL1LogProof", proof)
		p, err := chain.QueryLogProof(context.Background(), txHash, 0)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, uint64(7), p.ID)
		assert.Equal(t, common.HexToHash("0x11"), p.Root)
		assert.Len(t, p.Proof, 2)
		assert.Nil(t, p.BatchNumber)
	})
	t.Run("fallback", func(t *testing.T) {
		chain, node := testChain(t)
		withBatch := map[string]interface{}{"batch_number": 42}
		for k, v := range proof {
			withBatch[k] = v
		}
		node.result("getLogProof", withBatch)
		p, err := chain.QueryLogProof(context.Background(), txHash, 1)
		require.NoError(t, err)
		require.NotNil(t, p.BatchNumber)
		assert.Equal(t, uint64(42), *p.BatchNumber)
		assert.Equal(t, 1, node.count("zks_getL2ToL1LogProof"))
		assert.Equal(t, 1, node.count("zks_getLogProof"))
	})
	t.Run("not indexed", func(t *testing.T) {
		chain, node := testChain(t)
		node.result("zks_getL2ToL1LogProof", nil)
		p, err := chain.QueryLogProof(context.Background(), txHash, 0)
		require.NoError(t, err)
		assert.Nil(t, p)
		assert.Equal(t, 0, node.count("getLogProof"))
	})
	t.Run("unsupported", func(t *testing.T) {
		chain, _ := testChain(t)
		_, err := chain.QueryLogProof(context.Background(), txHash, 0)
		assert.ErrorContains(t, err, "getLogProof")
	})
}

func TestQueryViews(t *testing.T) {
	chain, node := testChain(t)
	root := common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	node.handle("eth_call", func(params []json.RawMessage) (interface{}, error) {
		to, input := callInput(t, params)
		var (
			out []byte
			err error
		)
		switch {
		case string(input[:4]) == string(core.InteropABI.Methods["interopRoots"].ID):
			if to != common.HexToAddress(DefaultInteropRootStorage) {
				return nil, &rpcError{Code: -32000, Message: "wrong contract"}
			}
			out, err = core.InteropABI.Methods["interopRoots"].Outputs.Pack([32]byte(root))
		case string(input[:4]) == string(core.InteropABI.Methods["bundleStatus"].ID):
			out, err = core.InteropABI.Methods["bundleStatus"].Outputs.Pack(uint8(core.BundleVerified))
		case string(input[:4]) == string(core.InteropABI.Methods["callStatus"].ID):
			out, err = core.InteropABI.Methods["callStatus"].Outputs.Pack(uint8(core.CallExecuted))
		default:
			return nil, &rpcError{Code: -32000, Message: "unknown selector"}
		}
		if err != nil {
			return nil, err
		}
		return hexutil.Bytes(out), nil
	})

	got, err := chain.QueryInteropRoot(context.Background(), big.NewInt(6565), 42)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	state, err := chain.QueryBundleStatus(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, core.BundleVerified, state)

	status, err := chain.QueryCallStatus(context.Background(), common.HexToHash("0x01"), 0)
	require.NoError(t, err)
	assert.Equal(t, core.CallExecuted, status)
}

func TestQueryCode(t *testing.T) {
	chain, node := testChain(t)
	node.result("eth_getCode", "0x6080")
	code, err := chain.QueryCode(context.Background(), common.HexToAddress("0x010010"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)
	assert.Equal(t, 1, node.count("eth_getCode"))
}

func TestQueryChainID(t *testing.T) {
	t.Run("matches config", func(t *testing.T) {
		chain, node := testChain(t)
		node.result("eth_chainId", "0x19a5")
		for i := 0; i < 2; i++ {
			id, err := chain.QueryChainID(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "6565", id.String())
		}
		assert.Equal(t, 1, node.count("eth_chainId"))
	})
	t.Run("differs from config", func(t *testing.T) {
		chain, node := testChain(t)
		node.result("eth_chainId", "0x19a6")
		_, err := chain.QueryChainID(context.Background())
		assert.True(t, errors.Is(err, core.ErrUntrustedConfiguration))
		assert.ErrorContains(t, err, "reports chain id 6566, configured 6565")
	})
}

func TestSimulateBundle(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		chain, node := testChain(t)
		node.handle("eth_call", func(params []json.RawMessage) (interface{}, error) {
			to, input := callInput(t, params)
			assert.Equal(t, common.HexToAddress(DefaultInteropHandler), to)
			assert.Equal(t, core.InteropABI.Methods["verifyBundle"].ID, input[:4])
			return "0x", nil
		})
		assert.NoError(t, chain.SimulateBundle(context.Background(), core.ActionVerify, []byte{0x01}, testProof(), nil))
	})
	t.Run("revert", func(t *testing.T) {
		chain, node := testChain(t)
		node.handle("eth_call", func([]json.RawMessage) (interface{}, error) {
			return nil, revertWith(t, "MessageNotIncluded")
		})
		err := chain.SimulateBundle(context.Background(), core.ActionExecute, []byte{0x01}, testProof(), nil)
		var rerr *core.RevertError
		require.True(t, errors.As(err, &rerr))
		assert.Equal(t, "MessageNotIncluded()", rerr.Reason)
		assert.True(t, errors.Is(err, core.ErrExecutionReverted))
	})
	t.Run("revert without data", func(t *testing.T) {
		chain, node := testChain(t)
		node.handle("eth_call", func([]json.RawMessage) (interface{}, error) {
			return nil, &rpcError{Code: -32000, Message: "execution reverted"}
		})
		err := chain.SimulateBundle(context.Background(), core.ActionExecute, []byte{0x01}, testProof(), nil)
		assert.True(t, errors.Is(err, core.ErrExecutionReverted))
	})
	t.Run("node error", func(t *testing.T) {
		chain, node := testChain(t)
		node.handle("eth_call", func([]json.RawMessage) (interface{}, error) {
			return nil, &rpcError{Code: -32000, Message: "header not found"}
		})
		err := chain.SimulateBundle(context.Background(), core.ActionExecute, []byte{0x01}, testProof(), nil)
		require.Error(t, err)
		assert.False(t, errors.Is(err, core.ErrExecutionReverted))
	})
}

func TestSubmitBundle(t *testing.T) {
	s, err := signer.NewPrivateKeySigner(testPrivateKey)
	require.NoError(t, err)

	setup := func(t *testing.T, baseFee interface{}) (*Chain, *fakeNode, *[]*types.Transaction) {
		chain, node := testChain(t)
		node.result("eth_chainId", "0x19a5")
		node.result("eth_estimateGas", "0x61a8")
		node.result("eth_getTransactionCount", "0x7")
		node.result("eth_maxPriorityFeePerGas", "0x1")
		node.result("eth_gasPrice", "0x3b9aca00")
		node.result("eth_getBlockByNumber", map[string]interface{}{"number": "0x1", "baseFeePerGas": baseFee})
		var sent []*types.Transaction
		node.handle("eth_sendRawTransaction", func(params []json.RawMessage) (interface{}, error) {
			var raw hexutil.Bytes
			if err := json.Unmarshal(params[0], &raw); err != nil {
				return nil, err
			}
			tx := new(types.Transaction)
			if err := tx.UnmarshalBinary(raw); err != nil {
				return nil, err
			}
			sent = append(sent, tx)
			return tx.Hash(), nil
		})
		return chain, node, &sent
	}

	t.Run("dynamic fee", func(t *testing.T) {
		chain, _, sent := setup(t, "0x3b9aca00")
		proof := testProof()
		hash, err := chain.SubmitBundle(context.Background(), core.ActionExecute, []byte{0x01}, proof, s)
		require.NoError(t, err)
		require.Len(t, *sent, 1)
		tx := (*sent)[0]
		assert.Equal(t, tx.Hash(), hash)
		assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		assert.Equal(t, uint64(7), tx.Nonce())
		assert.Equal(t, uint64(30000), tx.Gas())
		assert.Equal(t, common.HexToAddress(DefaultInteropHandler), *tx.To())
		assert.Equal(t, "6565", tx.ChainId().String())

		want, err := core.PackBundleCall(core.ActionExecute, []byte{0x01}, proof)
		require.NoError(t, err)
		assert.Equal(t, want, tx.Data())

		from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(6565)), tx)
		require.NoError(t, err)
		assert.Equal(t, s.Address(), from)
	})
	t.Run("legacy", func(t *testing.T) {
		chain, _, sent := setup(t, nil)
		_, err := chain.SubmitBundle(context.Background(), core.ActionVerify, []byte{0x01}, testProof(), s)
		require.NoError(t, err)
		require.Len(t, *sent, 1)
		assert.Equal(t, uint8(types.LegacyTxType), (*sent)[0].Type())
		from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(6565)), (*sent)[0])
		require.NoError(t, err)
		assert.Equal(t, s.Address(), from)
	})
	t.Run("revert on estimation", func(t *testing.T) {
		chain, node, sent := setup(t, "0x1")
		node.handle("eth_estimateGas", func([]json.RawMessage) (interface{}, error) {
			return nil, revertWith(t, "BundleAlreadyProcessed")
		})
		_, err := chain.SubmitBundle(context.Background(), core.ActionExecute, []byte{0x01}, testProof(), s)
		var rerr *core.RevertError
		require.True(t, errors.As(err, &rerr))
		assert.Empty(t, *sent)
	})
	t.Run("rejected", func(t *testing.T) {
		chain, node, _ := setup(t, "0x1")
		node.handle("eth_sendRawTransaction", func([]json.RawMessage) (interface{}, error) {
			return nil, &rpcError{Code: -32000, Message: "insufficient funds for gas * price + value"}
		})
		_, err := chain.SubmitBundle(context.Background(), core.ActionExecute, []byte{0x01}, testProof(), s)
		require.Error(t, err)
		assert.False(t, errors.Is(err, core.ErrSubmissionUnknown))
	})
	t.Run("already known", func(t *testing.T) {
		chain, node, _ := setup(t, "0x1")
		node.handle("eth_sendRawTransaction", func([]json.RawMessage) (interface{}, error) {
			return nil, &rpcError{Code: -32000, Message: "already known"}
		})
		hash, err := chain.SubmitBundle(context.Background(), core.ActionExecute, []byte{0x01}, testProof(), s)
		require.NoError(t, err)
		assert.NotEqual(t, common.Hash{}, hash)
	})
	t.Run("outcome unknown", func(t *testing.T) {
		chain, node, _ := setup(t, "0x1")
		node.handle("eth_sendRawTransaction", func([]json.RawMessage) (interface{}, error) {
			return nil, errHTTP
		})
		hash, err := chain.SubmitBundle(context.Background(), core.ActionExecute, []byte{0x01}, testProof(), s)
		assert.True(t, errors.Is(err, core.ErrSubmissionUnknown))
		assert.NotEqual(t, common.Hash{}, hash)
	})
}

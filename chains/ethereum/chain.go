package ethereum

import (
	"context"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/hyperledger-labs/interop-relayer/log"
	"github.com/hyperledger-labs/interop-relayer/otelcore/semconv"
	"github.com/hyperledger-labs/interop-relayer/signer"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const moduleName = "ethereum"

// Tracer is the tracer of the ethereum module.
var Tracer = otel.Tracer("github.com/hyperledger-labs/interop-relayer/chains/ethereum")

var (
	_ core.Chain  = (*Chain)(nil)
	_ core.Prover = (*Chain)(nil)
)

// Chain is an EVM chain reached through JSON-RPC. It serves as both the
// Chain and the Prover of a ProvableChain.
type Chain struct {
	config    ChainConfig
	contracts core.SystemContracts

	rpc    *rpc.Client
	client *ethclient.Client

	mu      sync.Mutex
	chainID *big.Int
}

// NewChain returns a Chain for config. HTTP endpoints are not contacted until the first call.
func NewChain(config ChainConfig) (*Chain, error) {
	contracts, err := config.Contracts()
	if err != nil {
		return nil, err
	}
	// HTTP requests carry the trace context of the calling span
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	rc, err := rpc.DialOptions(context.Background(), config.RpcAddr, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", config.RpcAddr)
	}
	return &Chain{
		config:    config,
		contracts: contracts,
		rpc:       rc,
		client:    ethclient.NewClient(rc),
	}, nil
}

// Config returns the config of the chain
func (c *Chain) Config() ChainConfig {
	return c.config
}

// ChainID returns the configured chain ID, or the name of the chain if no ID is configured
func (c *Chain) ChainID() string {
	if c.config.ChainId != "" {
		return c.config.ChainId
	}
	return c.config.Name
}

func (c *Chain) Contracts() core.SystemContracts {
	return c.contracts
}

// Close closes the underlying RPC connection
func (c *Chain) Close() {
	c.rpc.Close()
}

func (c *Chain) logger() *log.RelayLogger {
	return log.GetLogger().WithChainID(c.ChainID()).WithModule(moduleName)
}

// QueryChainID returns the chain ID reported by the endpoint. If a chain ID is
// configured, a different reported ID is rejected.
func (c *Chain) QueryChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query chain id")
	}
	if c.config.ChainId != "" && id.String() != c.config.ChainId {
		return nil, errors.WithHint(
			errors.Wrapf(core.ErrUntrustedConfiguration, "endpoint %s reports chain id %s, configured %s", c.config.RpcAddr, id, c.config.ChainId),
			"check rpc_addr and chain_id of the chain config",
		)
	}

	c.mu.Lock()
	c.chainID = id
	c.mu.Unlock()
	return new(big.Int).Set(id), nil
}

// LatestHeight returns the number of the latest block
func (c *Chain) LatestHeight(ctx context.Context) (uint64, error) {
	h, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to query block number")
	}
	return h, nil
}

func (c *Chain) QueryCode(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := c.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query code at %s", addr)
	}
	return code, nil
}

func (c *Chain) QueryReceipt(ctx context.Context, txHash common.Hash) (*core.Receipt, error) {
	var r *rpcReceipt
	if err := c.rpc.CallContext(ctx, &r, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, errors.Wrapf(err, "failed to query receipt of %s", txHash)
	}
	if r == nil {
		return nil, nil
	}
	return r.toCore()
}

func (c *Chain) QueryInteropRoot(ctx context.Context, sourceChainID *big.Int, batchNumber uint64) (common.Hash, error) {
	trace.SpanFromContext(ctx).SetAttributes(semconv.BatchNumberKey.Int64(int64(batchNumber)))

	out, err := c.view(ctx, c.contracts.InteropRootStorage, "interopRoots", sourceChainID, new(big.Int).SetUint64(batchNumber))
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(out[0].([32]byte)), nil
}

func (c *Chain) QueryBundleStatus(ctx context.Context, bundleHash common.Hash) (core.BundleState, error) {
	out, err := c.view(ctx, c.contracts.InteropHandler, "bundleStatus", bundleHash)
	if err != nil {
		return 0, err
	}
	return core.BundleState(out[0].(uint8)), nil
}

func (c *Chain) QueryCallStatus(ctx context.Context, bundleHash common.Hash, callIndex int) (core.CallStatus, error) {
	out, err := c.view(ctx, c.contracts.InteropHandler, "callStatus", bundleHash, big.NewInt(int64(callIndex)))
	if err != nil {
		return 0, err
	}
	return core.CallStatus(out[0].(uint8)), nil
}

// view performs an eth_call of a view method and unpacks its outputs.
func (c *Chain) view(ctx context.Context, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := core.InteropABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}
	bz, err := c.client.CallContract(ctx, geth.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call %s on %s", method, to)
	}
	out, err := core.InteropABI.Unpack(method, bz)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s result", method)
	}
	return out, nil
}

func (c *Chain) SimulateBundle(ctx context.Context, action core.BundleAction, encodedBundle []byte, proof *core.MessageInclusionProof, from *common.Address) error {
	data, err := core.PackBundleCall(action, encodedBundle, proof)
	if err != nil {
		return err
	}
	msg := geth.CallMsg{To: &c.contracts.InteropHandler, Data: data}
	if from != nil {
		msg.From = *from
	}
	if _, err := c.client.CallContract(ctx, msg, nil); err != nil {
		if rerr := revertFromError(err); rerr != nil {
			return rerr
		}
		return errors.Wrapf(err, "failed to simulate %s", action)
	}
	return nil
}

func (c *Chain) SubmitBundle(ctx context.Context, action core.BundleAction, encodedBundle []byte, proof *core.MessageInclusionProof, s signer.Signer) (common.Hash, error) {
	logger := c.logger()

	data, err := core.PackBundleCall(action, encodedBundle, proof)
	if err != nil {
		return common.Hash{}, err
	}
	from, err := signer.Address(ctx, s)
	if err != nil {
		return common.Hash{}, err
	}
	chainID, err := c.QueryChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	to := c.contracts.InteropHandler
	gas, err := c.client.EstimateGas(ctx, geth.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		if rerr := revertFromError(err); rerr != nil {
			return common.Hash{}, rerr
		}
		return common.Hash{}, errors.Wrap(err, "failed to estimate gas")
	}
	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to query nonce")
	}
	tx, err := c.newTx(ctx, chainID, nonce, to, gas, data)
	if err != nil {
		return common.Hash{}, err
	}

	txSigner := types.LatestSignerForChainID(chainID)
	sig, err := s.Sign(ctx, txSigner.Hash(tx).Bytes())
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to sign transaction")
	}
	signed, err := tx.WithSignature(txSigner, sig)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "invalid signature")
	}

	logger.InfoContext(ctx, "broadcasting transaction", "mode", action, "from", from, "nonce", nonce, "gas", gas, "tx_hash", signed.Hash())
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		if isKnownTransaction(err) {
			return signed.Hash(), nil
		}
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return common.Hash{}, errors.Wrap(err, "transaction rejected")
		}
		// the node may have accepted the transaction before the connection failed
		return signed.Hash(), errors.Mark(errors.Wrapf(err, "failed to broadcast %s", signed.Hash()), core.ErrSubmissionUnknown)
	}
	return signed.Hash(), nil
}

// newTx builds a dynamic fee transaction, or a legacy one if the chain reports no base fee.
func (c *Chain) newTx(ctx context.Context, chainID *big.Int, nonce uint64, to common.Address, gas uint64, data []byte) (*types.Transaction, error) {
	head, err := c.header(ctx, "latest")
	if err != nil {
		return nil, err
	}
	// headroom over the estimate
	gas += gas / 5

	if head.BaseFee == nil {
		price, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to query gas price")
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Data:     data,
		}), nil
	}
	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query gas tip cap")
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee.ToInt(), big.NewInt(2)))
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	}), nil
}

func (c *Chain) header(ctx context.Context, tag string) (*rpcHeader, error) {
	var head *rpcHeader
	if err := c.rpc.CallContext(ctx, &head, "eth_getBlockByNumber", tag, false); err != nil {
		return nil, errors.Wrapf(err, "failed to query %s block", tag)
	}
	if head == nil {
		return nil, errors.Wrapf(geth.NotFound, "%s block", tag)
	}
	return head, nil
}

func isKnownTransaction(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

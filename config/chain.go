package config

import (
	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/interop-relayer/chains/ethereum"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/hyperledger-labs/interop-relayer/otelcore"
)

// ChainSelector picks a chain by config alias, or an ad hoc endpoint.
type ChainSelector struct {
	// Chain is a configured name or chain ID
	Chain string
	// RpcAddr selects an endpoint that is not in the config
	RpcAddr string
	// ChainID is the expected chain ID of RpcAddr
	ChainID string
}

// ResolveChain returns the chain config selected by sel. An ad hoc endpoint
// uses the system contracts of the default deployment.
func (c *Config) ResolveChain(sel ChainSelector) (ethereum.ChainConfig, error) {
	switch {
	case sel.RpcAddr != "" && sel.Chain != "":
		return ethereum.ChainConfig{}, errors.New("cannot select a chain by both alias and rpc address")
	case sel.RpcAddr != "":
		return ethereum.ChainConfig{
			Name:      sel.RpcAddr,
			ChainId:   sel.ChainID,
			RpcAddr:   sel.RpcAddr,
			Addresses: ethereum.DefaultAddresses(),
		}, nil
	case sel.Chain != "":
		chain, err := c.GetChain(sel.Chain)
		if err != nil {
			return ethereum.ChainConfig{}, err
		}
		cc := *chain
		if sel.ChainID != "" {
			cc.ChainId = sel.ChainID
		}
		return cc, nil
	default:
		return ethereum.ChainConfig{}, errors.New("no chain selected")
	}
}

// BuildChain builds the provable chain of cc. The chain and its prover are
// traced with the tracer of the ethereum module.
func BuildChain(cc ethereum.ChainConfig) (*core.ProvableChain, error) {
	chain, err := cc.Build()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build chain %q", cc.Name)
	}
	return core.NewProvableChain(
		otelcore.NewChain(chain, ethereum.Tracer),
		otelcore.NewProver(chain, chain.ChainID(), ethereum.Tracer),
	), nil
}

// GetProvableChain resolves sel and builds its provable chain.
func (c *Config) GetProvableChain(sel ChainSelector) (*core.ProvableChain, error) {
	cc, err := c.ResolveChain(sel)
	if err != nil {
		return nil, err
	}
	return BuildChain(cc)
}

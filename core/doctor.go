package core

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// ContractInfo is the deployment state of one system contract.
type ContractInfo struct {
	Name     string         `json:"name"`
	Address  common.Address `json:"address"`
	CodeSize int            `json:"codeLen"`
	Deployed bool           `json:"deployed"`
	Err      error          `json:"-"`
}

// QueryContracts reads the code of every system contract configured for chain.
// A failed read is recorded in the returned row.
func QueryContracts(ctx context.Context, chain *ProvableChain) []ContractInfo {
	ctx, span := tracer.Start(ctx, "QueryContracts", WithChainAttributes(chain.ChainID()))
	defer span.End()

	contracts := chain.Contracts()
	rows := []ContractInfo{
		{Name: "interop_center", Address: contracts.InteropCenter},
		{Name: "interop_handler", Address: contracts.InteropHandler},
		{Name: "interop_root_storage", Address: contracts.InteropRootStorage},
	}
	var eg errgroup.Group
	for i := range rows {
		row := &rows[i]
		eg.Go(func() error {
			code, err := chain.QueryCode(ctx, row.Address)
			row.Err = err
			row.CodeSize = len(code)
			row.Deployed = err == nil && len(code) > 0
			return nil
		})
	}
	_ = eg.Wait()
	return rows
}

// Doctor checks that the endpoint of chain can serve every step of a relay.
// Like Explain, all checks run and the list is ordered.
func Doctor(ctx context.Context, chain *ProvableChain) Checks {
	ctx, span := tracer.Start(ctx, "Doctor", WithChainAttributes(chain.ChainID()))
	defer span.End()

	var checks Checks
	if id, err := chain.QueryChainID(ctx); err != nil {
		checks = append(checks, Check{"rpc.chainId", CheckFail, fmt.Sprintf("eth_chainId failed: %v", err)})
	} else {
		checks = append(checks, Check{"rpc.chainId", CheckOK, fmt.Sprintf("chain id %s", id)})
	}

	if h, err := chain.LatestFinalizedHeight(ctx); err != nil {
		checks = append(checks, Check{"rpc.finalizedBlock", CheckWarn, fmt.Sprintf("finalized block not supported: %v", err)})
	} else {
		checks = append(checks, Check{"rpc.finalizedBlock", CheckOK, fmt.Sprintf("finalized block %d", h)})
	}

	// an unknown transaction yields no proof; only a failed call matters
	if _, err := chain.QueryLogProof(ctx, common.Hash{}, 0); err != nil {
		checks = append(checks, Check{"rpc.logProof", CheckWarn, fmt.Sprintf("log proof query failed: %v; proofs cannot be fetched from this endpoint", err)})
	} else {
		checks = append(checks, Check{"rpc.logProof", CheckOK, "log proof query supported"})
	}

	for _, c := range QueryContracts(ctx, chain) {
		name := c.Name + ".code"
		switch {
		case c.Err != nil:
			checks = append(checks, Check{name, CheckWarn, fmt.Sprintf("failed to read code of %s: %v", c.Address.Hex(), c.Err)})
		case !c.Deployed:
			checks = append(checks, Check{name, CheckFail, fmt.Sprintf("%s not deployed at %s; check the addresses of the chain config", c.Name, c.Address.Hex())})
		default:
			checks = append(checks, Check{name, CheckOK, fmt.Sprintf("%s deployed at %s (%d bytes)", c.Name, c.Address.Hex(), c.CodeSize)})
		}
	}

	if checks.HasFailures() {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d checks failed", len(checks.Failed()), len(checks)))
	}
	return checks
}

package core

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

type CheckStatus string

const (
	CheckOK   CheckStatus = "ok"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Check is the result of one diagnostic.
type Check struct {
	Name    string      `json:"check"`
	Status  CheckStatus `json:"status"`
	Details string      `json:"details"`
}

func (c Check) String() string {
	return fmt.Sprintf("[%s] %s: %s", c.Status, c.Name, c.Details)
}

// Checks is an ordered list of diagnostics.
type Checks []Check

func (cs Checks) Failed() Checks {
	var out Checks
	for _, c := range cs {
		if c.Status == CheckFail {
			out = append(out, c)
		}
	}
	return out
}

func (cs Checks) HasFailures() bool {
	return len(cs.Failed()) > 0
}

func (cs Checks) Get(name string) (Check, bool) {
	for _, c := range cs {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

// DestinationState is the destination chain state the diagnostics depend on.
// A read that failed leaves its value unset and its error recorded.
type DestinationState struct {
	ChainID    *big.Int
	ChainIDErr error
	Root       common.Hash
	RootErr    error
	Status     BundleState
	StatusErr  error
	Center     common.Address
}

// QueryDestinationState reads the destination state relevant to bundle and proof.
// Read errors are recorded in the returned state.
func QueryDestinationState(ctx context.Context, dst *ProvableChain, bundle *ExtractedBundle, proof *MessageInclusionProof) *DestinationState {
	ctx, span := tracer.Start(ctx, "QueryDestinationState", WithChainAttributes(dst.ChainID()), WithBundleAttributes(bundle.BundleHash))
	defer span.End()

	state := &DestinationState{Center: dst.Contracts().InteropCenter}
	var eg errgroup.Group
	eg.Go(func() error {
		state.ChainID, state.ChainIDErr = dst.QueryChainID(ctx)
		return nil
	})
	eg.Go(func() error {
		state.Root, state.RootErr = dst.QueryInteropRoot(ctx, bigOrZero(proof.ChainID), proof.L1BatchNumber)
		return nil
	})
	eg.Go(func() error {
		state.Status, state.StatusErr = dst.QueryBundleStatus(ctx, bundle.BundleHash)
		return nil
	})
	_ = eg.Wait()
	return state
}

// Explain queries dst and diagnoses bundle and proof against it.
func Explain(ctx context.Context, dst *ProvableChain, bundle *ExtractedBundle, proof *MessageInclusionProof, signer *common.Address) Checks {
	ctx, span := tracer.Start(ctx, "Explain", WithChainAttributes(dst.ChainID()), WithBundleAttributes(bundle.BundleHash))
	defer span.End()

	checks := Diagnose(bundle, proof, QueryDestinationState(ctx, dst, bundle, proof), signer)
	logger := GetChainLogger(dst.Chain).WithBundle(bundle.BundleHash.Hex())
	for _, c := range checks {
		switch c.Status {
		case CheckFail:
			logger.WarnContext(ctx, "check failed", "check", c.Name, "details", c.Details)
		default:
			logger.DebugContext(ctx, "check", "check", c.Name, "status", string(c.Status), "details", c.Details)
		}
	}
	return checks
}

// Diagnose runs every check against the given state. It does not stop at the first failure.
func Diagnose(bundle *ExtractedBundle, proof *MessageInclusionProof, state *DestinationState, signer *common.Address) Checks {
	b := bundle.Bundle
	checks := Checks{
		checkDestinationChain(b, state),
		checkSourceChain(b, proof),
		checkStructure(b),
		checkInteropRoot(proof, state),
		checkProofSender(proof, state.Center),
		checkMessageData(bundle, proof),
		checkProofPath(proof),
		checkBundleStatus(state),
	}
	if signer == nil {
		checks = append(checks, Check{"permissions", CheckWarn, "signer not provided; skipping permission checks"})
	} else {
		checks = append(checks,
			checkPermission("executionAddress", b.Attributes.ExecutionAddress, *signer, state.ChainID),
			checkPermission("unbundlerAddress", b.Attributes.UnbundlerAddress, *signer, state.ChainID),
		)
	}
	return checks
}

func checkDestinationChain(b *InteropBundle, state *DestinationState) Check {
	const name = "bundle.destinationChainId"
	if state.ChainIDErr != nil {
		return Check{name, CheckWarn, fmt.Sprintf("failed to query destination chain id: %v", state.ChainIDErr)}
	}
	dest := bigOrZero(b.DestinationChainID)
	if dest.Cmp(state.ChainID) != 0 {
		return Check{name, CheckFail, fmt.Sprintf("bundle destination %s does not match current chain %s", dest, state.ChainID)}
	}
	return Check{name, CheckOK, "bundle destination matches current chain"}
}

func checkSourceChain(b *InteropBundle, proof *MessageInclusionProof) Check {
	const name = "bundle.sourceChainId"
	src, proofChain := bigOrZero(b.SourceChainID), bigOrZero(proof.ChainID)
	if src.Cmp(proofChain) != 0 {
		return Check{name, CheckFail, fmt.Sprintf("bundle source %s does not match proof chainId %s", src, proofChain)}
	}
	return Check{name, CheckOK, "bundle source matches proof chainId"}
}

func checkStructure(b *InteropBundle) Check {
	const name = "bundle.structure"
	var problems []string
	if b.Version != BundleVersion {
		problems = append(problems, fmt.Sprintf("unsupported bundle version 0x%02x", b.Version))
	}
	if len(b.Calls) == 0 {
		problems = append(problems, "bundle has no calls")
	}
	for i, c := range b.Calls {
		if c.Version != CallVersion {
			problems = append(problems, fmt.Sprintf("call %d has unsupported version 0x%02x", i, c.Version))
		}
		for j, a := range c.Attributes {
			if err := a.Validate(); err != nil {
				problems = append(problems, fmt.Sprintf("call %d attribute %d: %v", i, j, err))
			}
		}
	}
	for _, attr := range []struct {
		label string
		value []byte
	}{
		{"executionAddress", b.Attributes.ExecutionAddress},
		{"unbundlerAddress", b.Attributes.UnbundlerAddress},
	} {
		if len(attr.value) == 0 {
			continue
		}
		if _, err := DecodeInteroperableAddress(attr.value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", attr.label, err))
		}
	}
	if len(problems) > 0 {
		return Check{name, CheckFail, strings.Join(problems, "; ")}
	}
	return Check{name, CheckOK, fmt.Sprintf("bundle is well-formed with %d call(s)", len(b.Calls))}
}

func checkInteropRoot(proof *MessageInclusionProof, state *DestinationState) Check {
	const name = "interopRoot"
	switch {
	case state.RootErr != nil:
		return Check{name, CheckWarn, fmt.Sprintf("failed to query interop root: %v", state.RootErr)}
	case state.Root == (common.Hash{}):
		return Check{name, CheckFail, fmt.Sprintf("root of chain %s batch %d is not registered yet", bigOrZero(proof.ChainID), proof.L1BatchNumber)}
	case proof.Root == (common.Hash{}):
		return Check{name, CheckOK, fmt.Sprintf("root of batch %d is registered (%s); the proof does not name an expected root", proof.L1BatchNumber, state.Root.Hex())}
	case state.Root != proof.Root:
		return Check{name, CheckFail, fmt.Sprintf("registered root %s does not match proof root %s", state.Root.Hex(), proof.Root.Hex())}
	default:
		return Check{name, CheckOK, fmt.Sprintf("root of batch %d is registered", proof.L1BatchNumber)}
	}
}

func checkProofSender(proof *MessageInclusionProof, center common.Address) Check {
	const name = "proof.sender"
	if proof.Message.Sender != center {
		return Check{name, CheckFail, fmt.Sprintf("proof sender %s does not match center %s", strings.ToLower(proof.Message.Sender.Hex()), strings.ToLower(center.Hex()))}
	}
	return Check{name, CheckOK, "proof sender matches interop center"}
}

func checkMessageData(bundle *ExtractedBundle, proof *MessageInclusionProof) Check {
	const name = "proof.message.data"
	data := proof.Message.Data
	if len(data) == 0 || data[0] != BundleIdentifier {
		return Check{name, CheckFail, "message data missing 0x01 bundle prefix"}
	}
	if !bytes.Equal(data[1:], bundle.Encoded) {
		return Check{name, CheckFail, "message data has bundle prefix 0x01 but does not embed this bundle"}
	}
	return Check{name, CheckOK, "message data has bundle prefix 0x01"}
}

// checkProofPath is advisory. The handler verifies the proof authoritatively.
func checkProofPath(proof *MessageInclusionProof) Check {
	const name = "proof.path"
	if len(proof.Proof) == 0 {
		return Check{name, CheckWarn, "proof has no Merkle path"}
	}
	if proof.Proof[0] == (common.Hash{}) {
		return Check{name, CheckWarn, "proof path starts with an empty node"}
	}
	return Check{name, CheckOK, fmt.Sprintf("proof carries %d node(s); inclusion is verified by the destination handler", len(proof.Proof))}
}

func checkBundleStatus(state *DestinationState) Check {
	const name = "bundle.status"
	switch {
	case state.StatusErr != nil:
		return Check{name, CheckWarn, fmt.Sprintf("failed to query bundle status: %v", state.StatusErr)}
	case state.Status == BundleFullyExecuted, state.Status == BundleUnbundled:
		return Check{name, CheckWarn, fmt.Sprintf("bundle is already %s on the destination", state.Status)}
	default:
		return Check{name, CheckOK, fmt.Sprintf("bundle is %s on the destination", state.Status)}
	}
}

func checkPermission(label string, value []byte, signer common.Address, chainID *big.Int) Check {
	if len(value) == 0 {
		return Check{label, CheckOK, fmt.Sprintf("%s is permissionless", label)}
	}
	addr, err := DecodeInteroperableAddress(value)
	if err != nil {
		return Check{label, CheckWarn, fmt.Sprintf("failed to decode %s: %v", label, err)}
	}
	var allowed common.Address
	if a := addr.EVMAddress(); a != nil {
		allowed = *a
	}
	addrChain := addr.ChainID()
	validChain := addrChain.Sign() == 0 || (chainID != nil && addrChain.Cmp(chainID) == 0)
	if validChain && allowed == signer {
		return Check{label, CheckOK, fmt.Sprintf("%s allows signer %s", label, strings.ToLower(signer.Hex()))}
	}
	return Check{label, CheckFail, fmt.Sprintf("%s does not allow signer %s (chainId %s, addr %s)", label, strings.ToLower(signer.Hex()), addrChain, strings.ToLower(allowed.Hex()))}
}

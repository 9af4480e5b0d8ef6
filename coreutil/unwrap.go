package coreutil

import (
	"fmt"

	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/hyperledger-labs/interop-relayer/otelcore"
)

// UnwrapChain returns the backend of type C behind the ProvableChain and
// tracing decorators of c.
//
//	chain, err := coreutil.UnwrapChain[*ethereum.Chain](provableChain)
func UnwrapChain[C core.Chain](c core.Chain) (C, error) {
	return unwrap[C]("chain", c, func(v any) (any, bool) {
		switch w := v.(type) {
		case *core.ProvableChain:
			return w.Chain, true
		case *otelcore.Chain:
			return w.Chain, true
		}
		return nil, false
	})
}

// UnwrapProver is UnwrapChain for the Prover side.
func UnwrapProver[P core.Prover](p core.Prover) (P, error) {
	return unwrap[P]("prover", p, func(v any) (any, bool) {
		switch w := v.(type) {
		case *core.ProvableChain:
			return w.Prover, true
		case *otelcore.Prover:
			return w.Prover, true
		}
		return nil, false
	})
}

// UnwrapBackend returns the single value of type B serving as both the Chain
// and the Prover of pc.
func UnwrapBackend[B interface {
	comparable
	core.Chain
	core.Prover
}](pc *core.ProvableChain) (B, error) {
	chain, err := UnwrapChain[B](pc)
	if err != nil {
		return chain, err
	}
	prover, err := UnwrapProver[B](pc)
	if err != nil {
		return prover, err
	}
	if chain != prover {
		var zero B
		return zero, fmt.Errorf("chain and prover are different %T values", zero)
	}
	return chain, nil
}

// unwrap peels decorators off v with next until a T is found.
func unwrap[T any](kind string, v any, next func(any) (any, bool)) (T, error) {
	for {
		if t, ok := v.(T); ok {
			return t, nil
		}
		inner, ok := next(v)
		if !ok {
			var zero T
			return zero, fmt.Errorf("failed to unwrap %s: expected=%T, actual=%T", kind, zero, v)
		}
		v = inner
	}
}

package core

import (
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("github.com/hyperledger-labs/interop-relayer/core")
)

// WithChainAttributes returns a SpanStartOption identifying the chain.
func WithChainAttributes(chainID string) trace.SpanStartOption {
	return trace.WithAttributes(semconv.ChainIDKey.String(chainID))
}

// WithChainPairAttributes returns a SpanStartOption identifying both ends of a relay.
func WithChainPairAttributes(src, dst Chain) trace.SpanStartOption {
	attrs := semconv.AttributeGroup("src", semconv.ChainIDKey.String(src.ChainID()))
	attrs = append(attrs, semconv.AttributeGroup("dst", semconv.ChainIDKey.String(dst.ChainID()))...)
	return trace.WithAttributes(attrs...)
}

// WithBundleAttributes returns a SpanStartOption identifying a bundle.
func WithBundleAttributes(bundleHash common.Hash) trace.SpanStartOption {
	return trace.WithAttributes(semconv.BundleHashKey.String(bundleHash.Hex()))
}

// WithTxAttributes returns a SpanStartOption identifying a transaction.
func WithTxAttributes(txHash common.Hash) trace.SpanStartOption {
	return trace.WithAttributes(semconv.TxHashKey.String(txHash.Hex()))
}

// recordError marks the span as failed if err is not nil.
func recordError(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
}

// withPackage adds the package name of the function/method `v`
func withPackage(v any) trace.SpanStartOption {
	return trace.WithAttributes(semconv.PackageKey.String(getPackageName(v)))
}

func getPackageName(v any) string {
	if v == nil {
		return ""
	}

	rt := reflect.TypeOf(v)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return rt.PkgPath()
}

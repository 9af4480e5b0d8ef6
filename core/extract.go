package core

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hyperledger-labs/interop-relayer/log"
	"github.com/hyperledger-labs/interop-relayer/metrics"
	api "go.opentelemetry.io/otel/metric"
)

// ExtractBundles reads the receipt of txHash on src and decodes every bundle it sent.
func ExtractBundles(ctx context.Context, src *ProvableChain, txHash common.Hash) ([]*ExtractedBundle, error) {
	ctx, span := tracer.Start(ctx, "ExtractBundles", WithChainAttributes(src.ChainID()), WithTxAttributes(txHash))
	defer span.End()
	logger := GetChainLogger(src.Chain)
	defer logger.TimeTrackContext(ctx, time.Now(), "ExtractBundles")

	receipt, err := queryReceipt(ctx, src, logger, txHash)
	if err != nil {
		recordError(span, err)
		return nil, newStepError(StepExtract, err, nil)
	}

	bundles, err := ExtractBundlesFromReceipt(receipt, src.Contracts().InteropCenter)
	if err != nil {
		recordError(span, err)
		return nil, newStepError(StepExtract, err, nil)
	}

	metrics.BundlesExtractedCounter.Add(ctx, int64(len(bundles)),
		api.WithAttributes(metrics.ChainIDKey.String(src.ChainID())),
	)
	for _, b := range bundles {
		logger.InfoContext(ctx, "bundle extracted",
			"bundle_hash", b.BundleHash.Hex(),
			"log_index", b.LogIndex,
			"calls", len(b.Bundle.Calls),
		)
	}
	return bundles, nil
}

// ExtractBundlesFromReceipt decodes the bundles sent by center in a receipt, in log order.
// Logs emitted by any other contract are ignored.
// Call attributes are taken from the MessageSent log carrying the call's sendId.
func ExtractBundlesFromReceipt(receipt *Receipt, center common.Address) ([]*ExtractedBundle, error) {
	attributes := make(map[common.Hash][]CallAttribute)
	var sent []*types.Log
	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 || l.Address != center {
			continue
		}
		switch l.Topics[0] {
		case InteropBundleSentTopic:
			sent = append(sent, l)
		case MessageSentTopic:
			if len(l.Topics) < 2 {
				return nil, errors.Wrapf(ErrMalformedBundle, "MessageSent log %d has no sendId topic", l.Index)
			}
			attrs, err := decodeMessageSentAttributes(l.Data)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to decode MessageSent log %d", l.Index)
			}
			attributes[l.Topics[1]] = attrs
		}
	}
	if len(sent) == 0 {
		return nil, errors.Wrapf(ErrNoInteropEvents, "tx %s", receipt.TxHash.Hex())
	}

	out := make([]*ExtractedBundle, 0, len(sent))
	for _, l := range sent {
		eb, err := decodeBundleSent(l)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode InteropBundleSent log %d", l.Index)
		}
		eb.SourceTxHash = receipt.TxHash
		for i, id := range eb.SendIDs {
			eb.Bundle.Calls[i].Attributes = attributes[id]
		}
		out = append(out, eb)
	}
	return out, nil
}

// SelectBundle returns the index-th bundle.
func SelectBundle(bundles []*ExtractedBundle, index int) (*ExtractedBundle, error) {
	if index < 0 || index >= len(bundles) {
		return nil, errors.Newf("bundle index %d out of range: transaction sent %d bundle(s)", index, len(bundles))
	}
	return bundles[index], nil
}

func decodeBundleSent(l *types.Log) (*ExtractedBundle, error) {
	values, err := bundleSentArguments.Unpack(l.Data)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "abi decode"), ErrMalformedBundle)
	}
	if len(values) != 3 {
		return nil, errors.Wrapf(ErrMalformedBundle, "unexpected InteropBundleSent arity %d", len(values))
	}
	msgHash, ok1 := values[0].([32]byte)
	bundleHash, ok2 := values[1].([32]byte)
	if !ok1 || !ok2 {
		return nil, errors.Wrap(ErrMalformedBundle, "unexpected InteropBundleSent hash types")
	}
	sol, err := convertBundle(values[2])
	if err != nil {
		return nil, err
	}
	bundle, err := bundleFromSol(sol)
	if err != nil {
		return nil, err
	}
	// re-encode so that the artifact is exactly abi.encode(bundle)
	encoded, err := bundle.Encode()
	if err != nil {
		return nil, err
	}
	return &ExtractedBundle{
		Bundle:      bundle,
		Encoded:     encoded,
		BundleHash:  bundleHash,
		L2L1MsgHash: msgHash,
		LogIndex:    l.Index,
		SendIDs:     sendIDs(bundleHash, len(bundle.Calls)),
	}, nil
}

func decodeMessageSentAttributes(data []byte) ([]CallAttribute, error) {
	values, err := messageSentArguments.Unpack(data)
	if err != nil {
		return nil, errors.Mark(err, ErrMalformedBundle)
	}
	raw, ok := values[len(values)-1].([][]byte)
	if !ok {
		return nil, errors.Wrap(ErrMalformedBundle, "unexpected MessageSent attributes type")
	}
	attrs := make([]CallAttribute, len(raw))
	for i, a := range raw {
		attrs[i] = CallAttribute(a)
	}
	return attrs, nil
}

// queryReceipt reads a receipt, retrying transient read errors. A receipt that
// is not known to the node is an error.
func queryReceipt(ctx context.Context, chain *ProvableChain, logger *log.RelayLogger, txHash common.Hash) (*Receipt, error) {
	var receipt *Receipt
	if err := withRetry(ctx, logger, "receipt query", func() error {
		r, err := chain.QueryReceipt(ctx, txHash)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to query receipt of %s", txHash.Hex())
	}
	if receipt == nil {
		return nil, withHint(
			errors.Newf("transaction %s not found on chain %s", txHash.Hex(), chain.ChainID()),
			"check the transaction hash and the selected source chain",
		)
	}
	return receipt, nil
}

// GetChainLogger returns the core logger scoped to chain.
func GetChainLogger(chain Chain) *log.RelayLogger {
	return log.GetLogger().
		WithChainID(chain.ChainID()).
		WithModule("core")
}

package core

import (
	"context"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// L1MessengerAddress is the system contract that emits L1MessageSent.
var L1MessengerAddress = common.HexToAddress("0x0000000000000000000000000000000000008008")

// InteropEvent is one decoded interop log of a transaction.
type InteropEvent struct {
	Name     string            `json:"name"`
	Address  common.Address    `json:"address"`
	LogIndex uint              `json:"logIndex"`
	Data     map[string]string `json:"data"`
}

// TxInteropEvents is the interop content of one transaction.
type TxInteropEvents struct {
	TxHash  common.Hash        `json:"txHash"`
	Bundles []*ExtractedBundle `json:"bundles"`
	Events  []InteropEvent     `json:"interopEvents"`
}

// ShowTx reads the receipt of txHash on chain and decodes its interop events.
func ShowTx(ctx context.Context, chain *ProvableChain, txHash common.Hash) (*TxInteropEvents, error) {
	ctx, span := tracer.Start(ctx, "ShowTx", WithChainAttributes(chain.ChainID()), WithTxAttributes(txHash))
	defer span.End()
	logger := GetChainLogger(chain.Chain)
	defer logger.TimeTrackContext(ctx, time.Now(), "ShowTx")

	receipt, err := queryReceipt(ctx, chain, logger, txHash)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	out, err := DecodeInteropEvents(receipt, chain.Contracts())
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return out, nil
}

// DecodeInteropEvents decodes the logs of receipt emitted by the interop system contracts.
// Bundle and message events count only when emitted by the interop center, and
// processing events only when emitted by the interop handler.
func DecodeInteropEvents(receipt *Receipt, contracts SystemContracts) (*TxInteropEvents, error) {
	out := &TxInteropEvents{TxHash: receipt.TxHash, Bundles: []*ExtractedBundle{}, Events: []InteropEvent{}}

	bundles, err := ExtractBundlesFromReceipt(receipt, contracts.InteropCenter)
	switch {
	case err == nil:
		out.Bundles = bundles
	case !errors.Is(err, ErrNoInteropEvents):
		return nil, err
	}
	byLog := make(map[uint]*ExtractedBundle, len(out.Bundles))
	for _, b := range out.Bundles {
		byLog[b.LogIndex] = b
	}

	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 {
			continue
		}
		ev := InteropEvent{Address: l.Address, LogIndex: l.Index, Data: map[string]string{}}
		switch {
		case l.Topics[0] == InteropBundleSentTopic && l.Address == contracts.InteropCenter:
			b, ok := byLog[l.Index]
			if !ok {
				continue
			}
			ev.Name = "InteropBundleSent"
			ev.Data["bundleHash"] = b.BundleHash.Hex()
			ev.Data["l2l1MsgHash"] = b.L2L1MsgHash.Hex()
			ev.Data["sourceChainId"] = bigOrZero(b.Bundle.SourceChainID).String()
			ev.Data["destinationChainId"] = bigOrZero(b.Bundle.DestinationChainID).String()
			ev.Data["calls"] = strconv.Itoa(len(b.Bundle.Calls))
		case l.Topics[0] == MessageSentTopic && l.Address == contracts.InteropCenter:
			if err := decodeMessageSentEvent(l, &ev); err != nil {
				return nil, errors.Wrapf(err, "failed to decode MessageSent log %d", l.Index)
			}
		case l.Topics[0] == L1MessageSentTopic && l.Address == L1MessengerAddress:
			if err := decodeL1MessageSentEvent(l, &ev); err != nil {
				return nil, errors.Wrapf(err, "failed to decode L1MessageSent log %d", l.Index)
			}
		case l.Address != contracts.InteropHandler:
			continue
		case l.Topics[0] == BundleVerifiedTopic:
			ev.Name = "BundleVerified"
			setTopic(&ev, l, 1, "bundleHash")
		case l.Topics[0] == BundleExecutedTopic:
			ev.Name = "BundleExecuted"
			setTopic(&ev, l, 1, "bundleHash")
		case l.Topics[0] == BundleUnbundledTopic:
			ev.Name = "BundleUnbundled"
			setTopic(&ev, l, 1, "bundleHash")
		case l.Topics[0] == CallProcessedTopic:
			if err := decodeCallProcessedEvent(l, &ev); err != nil {
				return nil, errors.Wrapf(err, "failed to decode CallProcessed log %d", l.Index)
			}
		default:
			continue
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}

func setTopic(ev *InteropEvent, l *types.Log, i int, key string) {
	if i < len(l.Topics) {
		ev.Data[key] = l.Topics[i].Hex()
	}
}

func decodeMessageSentEvent(l *types.Log, ev *InteropEvent) error {
	values, err := messageSentArguments.Unpack(l.Data)
	if err != nil {
		return err
	}
	sender, _ := values[0].([]byte)
	recipient, _ := values[1].([]byte)
	payload, _ := values[2].([]byte)
	value, _ := values[3].(*big.Int)
	attrs, _ := values[4].([][]byte)

	ev.Name = "MessageSent"
	setTopic(ev, l, 1, "sendId")
	ev.Data["sender"] = formatInteroperableAddress(sender)
	ev.Data["recipient"] = formatInteroperableAddress(recipient)
	ev.Data["payload"] = hexutil.Encode(payload)
	ev.Data["value"] = bigOrZero(value).String()
	names := make([]string, len(attrs))
	for i, a := range attrs {
		if names[i] = CallAttribute(a).Name(); names[i] == "" {
			names[i] = hexutil.Encode(a)
		}
	}
	ev.Data["attributes"] = strings.Join(names, ",")
	return nil
}

func decodeL1MessageSentEvent(l *types.Log, ev *InteropEvent) error {
	values, err := l1MessageSentArguments.Unpack(l.Data)
	if err != nil {
		return err
	}
	message, _ := values[0].([]byte)

	ev.Name = "L1MessageSent"
	if len(l.Topics) > 1 {
		ev.Data["sender"] = common.BytesToAddress(l.Topics[1].Bytes()).Hex()
	}
	setTopic(ev, l, 2, "l2l1MsgHash")
	ev.Data["payload"] = hexutil.Encode(message)
	return nil
}

func decodeCallProcessedEvent(l *types.Log, ev *InteropEvent) error {
	values, err := callProcessedArguments.Unpack(l.Data)
	if err != nil {
		return err
	}
	status, _ := values[0].(uint8)

	ev.Name = "CallProcessed"
	setTopic(ev, l, 1, "bundleHash")
	if len(l.Topics) > 2 {
		ev.Data["callIndex"] = l.Topics[2].Big().String()
	}
	ev.Data["status"] = CallStatus(status).String()
	return nil
}

// formatInteroperableAddress renders bz as address@eip155:chain, or as hex if it does not decode.
func formatInteroperableAddress(bz []byte) string {
	if a, err := DecodeInteroperableAddress(bz); err == nil {
		return a.String()
	}
	return hexutil.Encode(bz)
}

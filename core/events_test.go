package core

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInteropEvents(t *testing.T) {
	sent, bundleHash := bundleSentLog(t, testBundle(), 2)
	attr, err := CallValueAttribute(big.NewInt(5))
	require.NoError(t, err)
	msgHash := common.HexToHash("0x0abc")
	payload, err := l1MessageSentArguments.Pack([]byte{0x01, 0x02})
	require.NoError(t, err)
	status, err := callProcessedArguments.Pack(uint8(CallExecuted))
	require.NoError(t, err)
	other := common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")

	receipt := &Receipt{
		TxHash: testTxHash,
		Logs: []*types.Log{
			{Address: L1MessengerAddress, Topics: []common.Hash{L1MessageSentTopic, common.BytesToHash(testContracts.InteropCenter.Bytes()), msgHash}, Data: payload, Index: 0},
			messageSentLog(t, SendID(bundleHash, 0), [][]byte{attr}, 1),
			sent,
			{Address: testContracts.InteropHandler, Topics: []common.Hash{CallProcessedTopic, bundleHash, common.BigToHash(big.NewInt(0))}, Data: status, Index: 3},
			{Address: testContracts.InteropHandler, Topics: []common.Hash{BundleExecutedTopic, bundleHash}, Index: 4},
			{Address: other, Topics: []common.Hash{BundleExecutedTopic, bundleHash}, Index: 5},
			{Address: other, Topics: []common.Hash{common.HexToHash("0x01")}, Index: 6},
		},
	}

	out, err := DecodeInteropEvents(receipt, testContracts)
	require.NoError(t, err)
	assert.Equal(t, testTxHash, out.TxHash)
	require.Len(t, out.Bundles, 1)
	assert.Equal(t, bundleHash, out.Bundles[0].BundleHash)
	assert.Equal(t, []CallAttribute{attr}, out.Bundles[0].Bundle.Calls[0].Attributes)

	var names []string
	for _, ev := range out.Events {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"L1MessageSent", "MessageSent", "InteropBundleSent", "CallProcessed", "BundleExecuted"}, names)

	assert.Equal(t, testContracts.InteropCenter.Hex(), out.Events[0].Data["sender"])
	assert.Equal(t, msgHash.Hex(), out.Events[0].Data["l2l1MsgHash"])
	assert.Equal(t, "0x0102", out.Events[0].Data["payload"])

	assert.Equal(t, SendID(bundleHash, 0).Hex(), out.Events[1].Data["sendId"])
	assert.Equal(t, "interopCallValue", out.Events[1].Data["attributes"])
	assert.Equal(t, "0", out.Events[1].Data["value"])

	assert.Equal(t, bundleHash.Hex(), out.Events[2].Data["bundleHash"])
	assert.Equal(t, "1", out.Events[2].Data["calls"])
	assert.Equal(t, "6566", out.Events[2].Data["destinationChainId"])

	assert.Equal(t, "0", out.Events[3].Data["callIndex"])
	assert.Equal(t, "Executed", out.Events[3].Data["status"])
	assert.Equal(t, uint(4), out.Events[4].LogIndex)
}

func TestDecodeInteropEventsWithoutBundles(t *testing.T) {
	hash := common.HexToHash("0x0102")
	receipt := &Receipt{
		TxHash: testHandlerTx,
		Logs: []*types.Log{
			{Address: testContracts.InteropHandler, Topics: []common.Hash{BundleVerifiedTopic, hash}},
		},
	}
	out, err := DecodeInteropEvents(receipt, testContracts)
	require.NoError(t, err)
	assert.Empty(t, out.Bundles)
	require.Len(t, out.Events, 1)
	assert.Equal(t, "BundleVerified", out.Events[0].Name)
	assert.Equal(t, hash.Hex(), out.Events[0].Data["bundleHash"])
}

func TestDecodeInteropEventsMalformed(t *testing.T) {
	receipt := &Receipt{Logs: []*types.Log{
		{Address: testContracts.InteropHandler, Topics: []common.Hash{CallProcessedTopic}, Data: []byte{0x01}, Index: 9},
	}}
	_, err := DecodeInteropEvents(receipt, testContracts)
	assert.ErrorContains(t, err, "CallProcessed log 9")
}

func TestShowTx(t *testing.T) {
	src, _, hash := newRelayFixture(t)
	out, err := ShowTx(context.Background(), src.provable(), testTxHash)
	require.NoError(t, err)
	require.Len(t, out.Bundles, 1)
	assert.Equal(t, hash, out.Bundles[0].BundleHash)

	_, err = ShowTx(context.Background(), src.provable(), testHandlerTx)
	assert.ErrorContains(t, err, "not found")
}

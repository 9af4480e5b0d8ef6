package core

import (
	"context"
	"math/big"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBundles(t *testing.T) {
	src, _, hash := newRelayFixture(t)

	bundles, err := ExtractBundles(context.Background(), src.provable(), testTxHash)
	require.NoError(t, err)
	require.Len(t, bundles, 1)

	b := bundles[0]
	assert.Equal(t, hash, b.BundleHash)
	assert.Equal(t, testTxHash, b.SourceTxHash)
	assert.Equal(t, []common.Hash{SendID(hash, 0)}, b.SendIDs)
	encoded, err := testBundle().Encode()
	require.NoError(t, err)
	assert.Equal(t, encoded, b.Encoded)
}

func TestExtractBundlesFromReceipt(t *testing.T) {
	first, firstHash := bundleSentLog(t, testBundle(), 1)
	second := testBundle()
	second.Salt = common.HexToHash("0x0203")
	secondLog, secondHash := bundleSentLog(t, second, 4)

	attr, err := InteropABI.Pack("interopCallValue", big.NewInt(5))
	require.NoError(t, err)

	receipt := &Receipt{
		TxHash: testTxHash,
		Logs: []*types.Log{
			{Topics: []common.Hash{L1MessageSentTopic}, Index: 0},
			first,
			messageSentLog(t, SendID(secondHash, 0), [][]byte{attr}, 3),
			secondLog,
			{Index: 5},
		},
	}

	// the result must not depend on anything but the receipt
	for i := 0; i < 2; i++ {
		bundles, err := ExtractBundlesFromReceipt(receipt, testContracts.InteropCenter)
		require.NoError(t, err)
		require.Len(t, bundles, 2)
		assert.Equal(t, firstHash, bundles[0].BundleHash)
		assert.Equal(t, uint(1), bundles[0].LogIndex)
		assert.Empty(t, bundles[0].Bundle.Calls[0].Attributes)
		assert.Equal(t, secondHash, bundles[1].BundleHash)
		assert.Equal(t, uint(4), bundles[1].LogIndex)
		assert.Equal(t, []CallAttribute{attr}, bundles[1].Bundle.Calls[0].Attributes)
	}
}

func TestExtractBundlesErrors(t *testing.T) {
	t.Run("no interop events", func(t *testing.T) {
		_, err := ExtractBundlesFromReceipt(&Receipt{TxHash: testTxHash, Logs: []*types.Log{{Topics: []common.Hash{L1MessageSentTopic}}}}, testContracts.InteropCenter)
		assert.True(t, errors.Is(err, ErrNoInteropEvents))
	})
	t.Run("malformed event", func(t *testing.T) {
		_, err := ExtractBundlesFromReceipt(&Receipt{Logs: []*types.Log{{Address: testContracts.InteropCenter, Topics: []common.Hash{InteropBundleSentTopic}, Data: []byte{0x01}}}}, testContracts.InteropCenter)
		assert.True(t, errors.Is(err, ErrMalformedBundle))
	})
	t.Run("unknown transaction", func(t *testing.T) {
		src := newFakeChain("source", testSourceChainID)
		_, err := ExtractBundles(context.Background(), src.provable(), testTxHash)
		require.Error(t, err)
		var stepErr *StepError
		require.True(t, errors.As(err, &stepErr))
		assert.Equal(t, StepExtract, stepErr.Step)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestExtractBundlesIgnoresOtherEmitters(t *testing.T) {
	genuine, genuineHash := bundleSentLog(t, testBundle(), 2)

	spoofedBundle := testBundle()
	spoofedBundle.Salt = common.HexToHash("0x0666")
	spoofed, _ := bundleSentLog(t, spoofedBundle, 0)
	spoofed.Address = common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")

	attr, err := InteropABI.Pack("interopCallValue", big.NewInt(5))
	require.NoError(t, err)
	spoofedAttrs := messageSentLog(t, SendID(genuineHash, 0), [][]byte{attr}, 1)
	spoofedAttrs.Address = spoofed.Address

	t.Run("only the interop center is trusted", func(t *testing.T) {
		bundles, err := ExtractBundlesFromReceipt(&Receipt{TxHash: testTxHash, Logs: []*types.Log{spoofed, spoofedAttrs, genuine}}, testContracts.InteropCenter)
		require.NoError(t, err)
		require.Len(t, bundles, 1)
		assert.Equal(t, genuineHash, bundles[0].BundleHash)
		assert.Empty(t, bundles[0].Bundle.Calls[0].Attributes)
	})
	t.Run("foreign events alone", func(t *testing.T) {
		_, err := ExtractBundlesFromReceipt(&Receipt{TxHash: testTxHash, Logs: []*types.Log{spoofed}}, testContracts.InteropCenter)
		assert.True(t, errors.Is(err, ErrNoInteropEvents))
	})
}

func TestSelectBundle(t *testing.T) {
	bundles := []*ExtractedBundle{{}, {}}
	b, err := SelectBundle(bundles, 1)
	require.NoError(t, err)
	assert.Same(t, bundles[1], b)

	_, err = SelectBundle(bundles, 2)
	assert.ErrorContains(t, err, "out of range")
	_, err = SelectBundle(bundles, -1)
	assert.Error(t, err)
}

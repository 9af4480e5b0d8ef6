package core

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartWatch(t *testing.T) {
	src, dst, hash := newRelayFixture(t)
	dst.bundleStat[hash] = BundleFullyExecuted

	var events []WatchEvent
	err := StartWatch(context.Background(), src.provable(), dst.provable(), WatchOptions{
		TxHash:  testTxHash,
		Poll:    PollConfig{Interval: time.Millisecond, Timeout: time.Second},
		Until:   BundleFullyExecuted,
		OnEvent: func(e WatchEvent) { events = append(events, e) },
	})
	require.NoError(t, err)

	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Event
	}
	assert.Equal(t, []string{EventFinalized, EventLogProof, EventRootAvailable, EventBundleStatus}, names)
	assert.Equal(t, testBatch, events[1].Details["batch"])
	assert.Equal(t, "FullyExecuted", events[3].Details["status"])
}

func TestStartWatchUntilVerified(t *testing.T) {
	src, dst, hash := newRelayFixture(t)
	dst.bundleStat[hash] = BundleVerified

	err := StartWatch(context.Background(), src.provable(), dst.provable(), WatchOptions{
		TxHash: testTxHash,
		Poll:   PollConfig{Interval: time.Millisecond, Timeout: time.Second},
		Until:  BundleVerified,
	})
	assert.NoError(t, err)
}

func TestStartWatchTimeout(t *testing.T) {
	src, dst, _ := newRelayFixture(t)

	var statuses int
	err := StartWatch(context.Background(), src.provable(), dst.provable(), WatchOptions{
		TxHash: testTxHash,
		Poll:   PollConfig{Interval: time.Millisecond, Timeout: 30 * time.Millisecond},
		OnEvent: func(e WatchEvent) {
			if e.Event == EventBundleStatus {
				statuses++
			}
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWatchTimedOut))
	assert.True(t, IsRetryable(err))
	// an unchanged status is reported once
	assert.Equal(t, 1, statuses)
}

func TestStartWatchRootMismatch(t *testing.T) {
	src, dst, _ := newRelayFixture(t)
	dst.roots[testBatch] = common.HexToHash("0x2222")

	err := StartWatch(context.Background(), src.provable(), dst.provable(), WatchOptions{
		TxHash: testTxHash,
		Poll:   PollConfig{Interval: time.Millisecond, Timeout: time.Second},
	})
	assert.True(t, errors.Is(err, ErrRootMismatch))
}

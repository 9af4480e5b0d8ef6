package core

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeFixture returns a destination ready to execute the fixture bundle with a matching proof.
func executeFixture(t *testing.T) (*fakeChain, *ExtractedBundle, *MessageInclusionProof) {
	t.Helper()
	src, dst, _ := newRelayFixture(t)
	bundles, err := ExtractBundlesFromReceipt(src.receipts[testTxHash], testContracts.InteropCenter)
	require.NoError(t, err)
	proof, err := buildInclusionProof(testSourceChainID, src.receipts[testTxHash], src.logProof, testContracts.InteropCenter, bundles[0])
	require.NoError(t, err)
	return dst, bundles[0], proof
}

func TestExecuteBundle(t *testing.T) {
	dst, bundle, proof := executeFixture(t)

	var submitted []common.Hash
	result, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{
		Action:      ActionExecute,
		Signer:      testSigner(t),
		Receipt:     fastPoll,
		OnSubmitted: func(h common.Hash) { submitted = append(submitted, h) },
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, &testHandlerTx, result.TxHash)
	assert.Equal(t, []common.Hash{testHandlerTx}, submitted)
	assert.Equal(t, BundleFullyExecuted, result.Status.State)
	require.Len(t, result.Calls, 1)
	assert.Equal(t, bundle.SendIDs[0], result.Calls[0].SendID)
	assert.False(t, result.Checks.HasFailures(), "%v", result.Checks)
}

func TestExecuteBundleVerify(t *testing.T) {
	dst, bundle, proof := executeFixture(t)
	result, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{
		Action:  ActionVerify,
		Signer:  testSigner(t),
		Receipt: fastPoll,
	})
	require.NoError(t, err)
	assert.Equal(t, BundleVerified, result.Status.State)

	// a verified bundle may still be executed, but not verified again
	_, err = ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: ActionVerify, Signer: testSigner(t)})
	assert.True(t, errors.Is(err, ErrAlreadyExecuted))
	_, err = ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: ActionExecute, Signer: testSigner(t), Receipt: fastPoll})
	assert.NoError(t, err)
}

func TestExecuteBundleNormalizesProof(t *testing.T) {
	dst, bundle, proof := executeFixture(t)
	proof.Message.Sender = common.HexToAddress("0xdead")
	proof.Message.Data = []byte{0x00}

	result, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: ActionExecute, DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	c, ok := result.Checks.Get("proof.sender")
	require.True(t, ok)
	assert.Equal(t, CheckOK, c.Status)
}

func TestExecuteBundleDryRun(t *testing.T) {
	t.Run("success without signer", func(t *testing.T) {
		dst, bundle, proof := executeFixture(t)
		result, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: ActionExecute, DryRun: true})
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.True(t, result.DryRun)
		assert.Nil(t, result.TxHash)
		assert.Equal(t, 0, dst.submitted)
		c, ok := result.Checks.Get("permissions")
		require.True(t, ok)
		assert.Equal(t, CheckWarn, c.Status)
		assert.Equal(t, "signer not provided; skipping permission checks", c.Details)
	})
	t.Run("revert is reported in the result", func(t *testing.T) {
		dst, bundle, proof := executeFixture(t)
		dst.simulateErr = NewRevertError(revertData(t, "MessageNotIncluded"))
		result, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: ActionExecute, DryRun: true})
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "MessageNotIncluded()", result.RevertReason)
	})
	t.Run("already processed revert", func(t *testing.T) {
		dst, bundle, proof := executeFixture(t)
		dst.simulateErr = NewRevertError(revertData(t, "BundleAlreadyProcessed", [32]byte(bundle.BundleHash)))
		_, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: ActionExecute, DryRun: true})
		assert.True(t, errors.Is(err, ErrAlreadyExecuted))
	})
}

func TestExecuteBundleErrors(t *testing.T) {
	t.Run("signer required", func(t *testing.T) {
		dst, bundle, proof := executeFixture(t)
		_, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: ActionExecute})
		assert.True(t, errors.Is(err, ErrSignerRequired))
		assert.Contains(t, errors.FlattenHints(err), "--private-key")
	})
	t.Run("invalid mode", func(t *testing.T) {
		dst, bundle, proof := executeFixture(t)
		_, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: "relay", DryRun: true})
		assert.ErrorContains(t, err, "invalid mode")
	})
	t.Run("already executed", func(t *testing.T) {
		dst, bundle, proof := executeFixture(t)
		dst.bundleStat[bundle.BundleHash] = BundleFullyExecuted
		result, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: ActionExecute, Signer: testSigner(t)})
		assert.True(t, errors.Is(err, ErrAlreadyExecuted))
		require.NotNil(t, result)
		assert.Equal(t, BundleFullyExecuted, result.Status.State)
		assert.Equal(t, 0, dst.submitted)
	})
	t.Run("destination mismatch", func(t *testing.T) {
		dst, bundle, proof := executeFixture(t)
		dst.chainID = testSourceChainID
		_, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: ActionExecute, Signer: testSigner(t)})
		assert.True(t, errors.Is(err, ErrDestinationMismatch))
		var stepErr *StepError
		require.True(t, errors.As(err, &stepErr))
		assert.True(t, stepErr.Checks.HasFailures())
		assert.Equal(t, 0, dst.submitted)
	})
	t.Run("revert before broadcast", func(t *testing.T) {
		dst, bundle, proof := executeFixture(t)
		dst.submitErr = NewRevertError(revertData(t, "MessageNotIncluded"))
		result, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: ActionExecute, Signer: testSigner(t)})
		assert.True(t, errors.Is(err, ErrExecutionReverted))
		require.NotNil(t, result)
		assert.False(t, result.Success)
		assert.Equal(t, BundleFailed, result.Status.State)
		assert.Equal(t, "MessageNotIncluded()", result.Status.Reason)
		assert.NotEmpty(t, result.Checks)
	})
	t.Run("reverted receipt", func(t *testing.T) {
		dst, bundle, proof := executeFixture(t)
		dst.submitReceipt = receiptStatus(types.ReceiptStatusFailed)
		dst.simulateErr = NewRevertError(revertData(t, "MessageNotIncluded"))
		result, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{Action: ActionExecute, Signer: testSigner(t), Receipt: fastPoll})
		assert.True(t, errors.Is(err, ErrExecutionReverted))
		require.NotNil(t, result)
		assert.Equal(t, &testHandlerTx, result.TxHash)
		assert.Equal(t, "MessageNotIncluded()", result.RevertReason)
	})
	t.Run("unknown outcome", func(t *testing.T) {
		dst, bundle, proof := executeFixture(t)
		dst.submitReceipt = nil
		called := false
		result, err := ExecuteBundle(context.Background(), dst.provable(), bundle, proof, ExecuteOptions{
			Action:      ActionExecute,
			Signer:      testSigner(t),
			Receipt:     PollConfig{Interval: time.Millisecond, Timeout: 20 * time.Millisecond},
			OnSubmitted: func(common.Hash) { called = true },
		})
		assert.True(t, errors.Is(err, ErrSubmissionUnknown))
		assert.True(t, called)
		require.NotNil(t, result)
		assert.Equal(t, &testHandlerTx, result.TxHash)
	})
}

func TestSubmissionResult(t *testing.T) {
	assert.Equal(t, resultSuccess, submissionResult(&ExecutionResult{Success: true}, nil))
	assert.Equal(t, resultReverted, submissionResult(&ExecutionResult{}, nil))
	assert.Equal(t, resultAlreadyExecuted, submissionResult(nil, ErrAlreadyExecuted))
	assert.Equal(t, resultUnknown, submissionResult(nil, errors.Mark(errors.New("x"), ErrSubmissionUnknown)))
	assert.Equal(t, resultError, submissionResult(nil, errors.New("x")))
}

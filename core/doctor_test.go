package core

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctor(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(c *fakeChain)
		check  string
		status CheckStatus
	}{
		{
			name:   "healthy endpoint",
			setup:  func(c *fakeChain) {},
			check:  "rpc.chainId",
			status: CheckOK,
		},
		{
			name:   "chain id unreadable",
			setup:  func(c *fakeChain) { c.chainErr = errors.New("connection refused") },
			check:  "rpc.chainId",
			status: CheckFail,
		},
		{
			name:   "log proofs unsupported",
			setup:  func(c *fakeChain) { c.logProofErr = errors.New("method not found") },
			check:  "rpc.logProof",
			status: CheckWarn,
		},
		{
			name:   "handler not deployed",
			setup:  func(c *fakeChain) { delete(c.code, testContracts.InteropHandler) },
			check:  "interop_handler.code",
			status: CheckFail,
		},
		{
			name:   "code unreadable",
			setup:  func(c *fakeChain) { c.codeErr = errors.New("timeout") },
			check:  "interop_center.code",
			status: CheckWarn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeChain("source", testSourceChainID)
			tt.setup(c)

			checks := Doctor(context.Background(), c.provable())
			require.Len(t, checks, 6)
			got, ok := checks.Get(tt.check)
			require.True(t, ok)
			assert.Equal(t, tt.status, got.Status, got.Details)
			if tt.name == "healthy endpoint" {
				assert.False(t, checks.HasFailures(), "%v", checks)
			}
		})
	}
}

func TestQueryContracts(t *testing.T) {
	c := newFakeChain("source", testSourceChainID)
	delete(c.code, testContracts.InteropRootStorage)

	rows := QueryContracts(context.Background(), c.provable())
	require.Len(t, rows, 3)
	assert.Equal(t, "interop_center", rows[0].Name)
	assert.Equal(t, testContracts.InteropCenter, rows[0].Address)
	assert.True(t, rows[0].Deployed)
	assert.Equal(t, 2, rows[0].CodeSize)
	assert.False(t, rows[2].Deployed)
	assert.Zero(t, rows[2].CodeSize)
}

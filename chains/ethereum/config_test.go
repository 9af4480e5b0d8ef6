package ethereum

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainConfigValidate(t *testing.T) {
	valid := ChainConfig{Name: "era", ChainId: "6565", RpcAddr: "http://localhost:3050", Addresses: DefaultAddresses()}

	tests := []struct {
		name      string
		modify    func(c *ChainConfig)
		untrusted bool
		msg       string
	}{
		{"valid", func(c *ChainConfig) {}, false, ""},
		{"without chain id", func(c *ChainConfig) { c.ChainId = "" }, false, ""},
		{"empty rpc", func(c *ChainConfig) { c.RpcAddr = " " }, false, "rpc_addr"},
		{"bad chain id", func(c *ChainConfig) { c.ChainId = "0x19a5" }, false, "chain_id"},
		{"missing handler", func(c *ChainConfig) { c.Addresses.InteropHandler = "" }, true, "interopHandler"},
		{"zero root storage", func(c *ChainConfig) { c.Addresses.InteropRootStorage = common.Address{}.Hex() }, true, "interopRootStorage"},
		{"malformed center", func(c *ChainConfig) { c.Addresses.InteropCenter = "0x1234" }, true, "interop_center"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.modify(&c)
			err := c.Validate()
			if tt.msg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.msg)
			assert.Equal(t, tt.untrusted, errors.Is(err, core.ErrUntrustedConfiguration))
		})
	}
}

func TestChainConfigBuild(t *testing.T) {
	chain, err := ChainConfig{Name: "era", RpcAddr: "http://localhost:3050", Addresses: DefaultAddresses()}.Build()
	require.NoError(t, err)
	defer chain.Close()

	// the alias stands in for an unconfigured chain id
	assert.Equal(t, "era", chain.ChainID())
	assert.Equal(t, common.HexToAddress(DefaultInteropCenter), chain.Contracts().InteropCenter)
	assert.Equal(t, common.HexToAddress(DefaultInteropHandler), chain.Contracts().InteropHandler)
	assert.Equal(t, common.HexToAddress(DefaultInteropRootStorage), chain.Contracts().InteropRootStorage)

	_, err = ChainConfig{RpcAddr: "http://localhost:3050"}.Build()
	assert.True(t, errors.Is(err, core.ErrUntrustedConfiguration))
}

package core

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributes(t *testing.T) {
	executor := common.HexToAddress("0x00000000000000000000000000000000000000ee")

	tests := []struct {
		name  string
		build func() (CallAttribute, error)
		want  interface{}
	}{
		{"interopCallValue", func() (CallAttribute, error) { return CallValueAttribute(big.NewInt(5)) }, big.NewInt(5)},
		{"indirectCall", func() (CallAttribute, error) { return IndirectCallAttribute(big.NewInt(7)) }, big.NewInt(7)},
		{"executionAddress", func() (CallAttribute, error) { return ExecutionAddressAttribute(&executor) }, EncodeAddressOnly(executor)},
		{"executionAddress", func() (CallAttribute, error) { return ExecutionAddressAttribute(nil) }, []byte{}},
		{"unbundlerAddress", func() (CallAttribute, error) { return UnbundlerAddressAttribute(executor) }, EncodeAddressOnly(executor)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr, err := tt.build()
			require.NoError(t, err)
			assert.Equal(t, tt.name, attr.Name())
			assert.NoError(t, attr.Validate())

			args, err := InteropABI.Methods[tt.name].Inputs.Unpack(attr[4:])
			require.NoError(t, err)
			require.Len(t, args, 1)
			assert.Equal(t, tt.want, args[0])
		})
	}
}

func TestAssetID(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	id, err := AssetID(big.NewInt(6565), token, DefaultNativeTokenVault)
	require.NoError(t, err)

	want := crypto.Keccak256Hash(
		common.LeftPadBytes(big.NewInt(6565).Bytes(), 32),
		common.LeftPadBytes(DefaultNativeTokenVault.Bytes(), 32),
		common.LeftPadBytes(token.Bytes(), 32),
	)
	assert.Equal(t, want, id)
}

package signer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// a well-known development key
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestPrivateKeySigner(t *testing.T) {
	ctx := context.Background()
	s, err := NewPrivateKeySigner(testKey)
	require.NoError(t, err)
	require.Equal(t, testAddr, s.Address())

	addr, err := Address(ctx, s)
	require.NoError(t, err)
	require.Equal(t, testAddr, addr)

	digest := crypto.Keccak256([]byte("bundle"))
	sig, err := s.Sign(ctx, digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	require.Equal(t, testAddr, crypto.PubkeyToAddress(*pub))
}

func TestPrivateKeyConfig(t *testing.T) {
	cases := []struct {
		name    string
		config  PrivateKeyConfig
		env     map[string]string
		want    *common.Address
		wantErr bool
	}{
		{"inline", PrivateKeyConfig{PrivateKey: testKey}, nil, &testAddr, false},
		{"default env", PrivateKeyConfig{}, map[string]string{DefaultPrivateKeyEnv: testKey}, &testAddr, false},
		{"custom env", PrivateKeyConfig{PrivateKeyEnv: "RELAYER_KEY"}, map[string]string{"RELAYER_KEY": testKey}, &testAddr, false},
		{"no key", PrivateKeyConfig{}, map[string]string{DefaultPrivateKeyEnv: ""}, nil, false},
		{"both", PrivateKeyConfig{PrivateKey: testKey, PrivateKeyEnv: "RELAYER_KEY"}, nil, nil, true},
		{"invalid", PrivateKeyConfig{PrivateKey: "0x1234"}, nil, nil, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Setenv(DefaultPrivateKeyEnv, "")
			for k, v := range c.env {
				t.Setenv(k, v)
			}
			s, err := c.config.Load()
			if c.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if c.want == nil {
				require.Nil(t, s)
				_, err := c.config.Build()
				require.Error(t, err)
				return
			}
			require.Equal(t, *c.want, s.Address())
		})
	}
}

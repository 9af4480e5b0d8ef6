package signer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type SignerConfig interface {
	Build() (Signer, error)
	Validate() error
}

// Signer signs transaction digests for the destination chain.
type Signer interface {
	// Sign returns a 65-byte [R || S || V] secp256k1 signature of digest, with V in {0, 1}
	Sign(ctx context.Context, digest []byte) (signature []byte, err error)
	// GetPublicKey returns the uncompressed public key
	GetPublicKey(ctx context.Context) ([]byte, error)
}

// Address returns the account address controlled by s.
func Address(ctx context.Context, s Signer) (common.Address, error) {
	bz, err := s.GetPublicKey(ctx)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to get public key")
	}
	pub, err := crypto.UnmarshalPubkey(bz)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "invalid public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

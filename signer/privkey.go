package signer

import (
	"context"
	"crypto/ecdsa"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultPrivateKeyEnv is the environment variable read when no key is given explicitly.
const DefaultPrivateKeyEnv = "PRIVATE_KEY"

var _ Signer = (*PrivateKeySigner)(nil)

// PrivateKeySigner signs with an in-memory secp256k1 key.
type PrivateKeySigner struct {
	key *ecdsa.PrivateKey
}

// NewPrivateKeySigner parses a hex private key, with or without 0x prefix.
func NewPrivateKeySigner(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return &PrivateKeySigner{key: key}, nil
}

func (s *PrivateKeySigner) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	return crypto.Sign(digest, s.key)
}

func (s *PrivateKeySigner) GetPublicKey(ctx context.Context) ([]byte, error) {
	return crypto.FromECDSAPub(&s.key.PublicKey), nil
}

func (s *PrivateKeySigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

var _ SignerConfig = (*PrivateKeyConfig)(nil)

// PrivateKeyConfig selects a private key given inline or through an environment variable.
type PrivateKeyConfig struct {
	PrivateKey    string
	PrivateKeyEnv string
}

func (c *PrivateKeyConfig) Validate() error {
	if c.PrivateKey != "" && c.PrivateKeyEnv != "" {
		return errors.New("cannot set both --private-key and --private-key-env")
	}
	return nil
}

func (c *PrivateKeyConfig) env() string {
	if c.PrivateKeyEnv != "" {
		return c.PrivateKeyEnv
	}
	return DefaultPrivateKeyEnv
}

// Build returns the configured signer. It fails when no key is available.
func (c *PrivateKeyConfig) Build() (Signer, error) {
	s, err := c.Load()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.Newf("no private key: pass --private-key or set %s", c.env())
	}
	return s, nil
}

// Load returns the configured signer, or nil if no key is available.
func (c *PrivateKeyConfig) Load() (*PrivateKeySigner, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.PrivateKey != "" {
		return NewPrivateKeySigner(c.PrivateKey)
	}
	if key, ok := os.LookupEnv(c.env()); ok && key != "" {
		s, err := NewPrivateKeySigner(key)
		if err != nil {
			return nil, errors.Wrapf(err, "from $%s", c.env())
		}
		return s, nil
	}
	return nil, nil
}

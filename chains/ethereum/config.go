package ethereum

import (
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/core"
)

// Well-known system contract addresses of the interop deployment.
const (
	DefaultInteropCenter      = "0x0000000000000000000000000000000000010010"
	DefaultInteropHandler     = "0x000000000000000000000000000000000001000d"
	DefaultInteropRootStorage = "0x0000000000000000000000000000000000010008"
)

// AddressesConfig holds the system contract addresses of a chain.
type AddressesConfig struct {
	InteropCenter      string `json:"interop_center" yaml:"interop_center"`
	InteropHandler     string `json:"interop_handler" yaml:"interop_handler"`
	InteropRootStorage string `json:"interop_root_storage" yaml:"interop_root_storage"`
}

// DefaultAddresses returns the addresses used by a standard deployment.
func DefaultAddresses() AddressesConfig {
	return AddressesConfig{
		InteropCenter:      DefaultInteropCenter,
		InteropHandler:     DefaultInteropHandler,
		InteropRootStorage: DefaultInteropRootStorage,
	}
}

// ChainConfig is the configuration of an EVM chain endpoint.
type ChainConfig struct {
	// Name is the alias used to select the chain on the command line
	Name string `json:"name" yaml:"name"`
	// ChainId is the expected chain ID. When set, the endpoint must report the same ID.
	ChainId   string          `json:"chain_id,omitempty" yaml:"chain_id,omitempty"`
	RpcAddr   string          `json:"rpc_addr" yaml:"rpc_addr"`
	Addresses AddressesConfig `json:"addresses" yaml:"addresses"`
}

// Validate checks the endpoint and the system contract addresses.
func (c ChainConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RpcAddr) == "" {
		errs = append(errs, errors.New("config attribute \"rpc_addr\" is empty"))
	}
	if c.ChainId != "" {
		if _, ok := new(big.Int).SetString(c.ChainId, 10); !ok {
			errs = append(errs, errors.Newf("config attribute \"chain_id\" is not a decimal integer: %q", c.ChainId))
		}
	}
	if _, err := c.Contracts(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Contracts parses the configured addresses. Unset or zero addresses are rejected.
func (c ChainConfig) Contracts() (core.SystemContracts, error) {
	var contracts core.SystemContracts
	for _, f := range []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"interop_center", c.Addresses.InteropCenter, &contracts.InteropCenter},
		{"interop_handler", c.Addresses.InteropHandler, &contracts.InteropHandler},
		{"interop_root_storage", c.Addresses.InteropRootStorage, &contracts.InteropRootStorage},
	} {
		if f.value != "" && !common.IsHexAddress(f.value) {
			return contracts, errors.Wrapf(core.ErrUntrustedConfiguration, "%s is not an address: %q", f.name, f.value)
		}
		*f.dst = common.HexToAddress(f.value)
	}
	if err := contracts.Validate(); err != nil {
		return contracts, err
	}
	return contracts, nil
}

// Build returns a Chain for the config. The endpoint is not contacted.
func (c ChainConfig) Build() (*Chain, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return NewChain(c)
}

package core

import (
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultNativeTokenVault is the native token vault that derives asset IDs.
var DefaultNativeTokenVault = common.HexToAddress("0x0000000000000000000000000000000000010004")

// CallValueAttribute carries the value forwarded to the call recipient.
func CallValueAttribute(value *big.Int) (CallAttribute, error) {
	return packAttribute("interopCallValue", bigOrZero(value))
}

// IndirectCallAttribute marks the call as indirect with the given message value.
func IndirectCallAttribute(messageValue *big.Int) (CallAttribute, error) {
	return packAttribute("indirectCall", bigOrZero(messageValue))
}

// ExecutionAddressAttribute restricts execution to executor. A nil executor is permissionless.
func ExecutionAddressAttribute(executor *common.Address) (CallAttribute, error) {
	var encoded []byte
	if executor != nil {
		encoded = EncodeAddressOnly(*executor)
	}
	return packAttribute("executionAddress", nonNil(encoded))
}

// UnbundlerAddressAttribute restricts unbundling to unbundler.
func UnbundlerAddressAttribute(unbundler common.Address) (CallAttribute, error) {
	return packAttribute("unbundlerAddress", EncodeAddressOnly(unbundler))
}

// AssetID derives the asset ID of token bridged from chainID through vault.
func AssetID(chainID *big.Int, token, vault common.Address) (common.Hash, error) {
	bz, err := assetIDArguments.Pack(bigOrZero(chainID), vault, token)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to encode asset id")
	}
	return crypto.Keccak256Hash(bz), nil
}

func packAttribute(name string, args ...interface{}) (CallAttribute, error) {
	bz, err := InteropABI.Pack(name, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s attribute", name)
	}
	return CallAttribute(bz), nil
}

package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// InteroperableAddressVersion is the only version understood by the codec.
	InteroperableAddressVersion uint16 = 1

	evmAddressLength = common.AddressLength

	// maxChainReferenceLength is the largest chain reference a one-byte length prefix can carry.
	maxChainReferenceLength = 255
)

var (
	// ChainTypeEVM is the chain type tag of EVM chains.
	ChainTypeEVM = [2]byte{0x00, 0x00}

	evmV1Header            = []byte{0x00, 0x01, 0x00, 0x00}
	evmV1AddressOnlyHeader = []byte{0x00, 0x01, 0x00, 0x00, 0x00}
)

// InteroperableAddress is a self-describing chain-aware address.
//
// The wire layout is:
//
//	version(2) | chainType(2) | len(chainRef)(1) | chainRef | len(address)(1) | address
type InteroperableAddress struct {
	Version        uint16
	ChainType      [2]byte
	ChainReference []byte
	Address        []byte
}

// ChainID returns the chain reference as an integer. An empty reference yields 0.
func (a *InteroperableAddress) ChainID() *big.Int {
	return new(big.Int).SetBytes(a.ChainReference)
}

// EVMAddress returns the address part, or nil for chain-only references.
func (a *InteroperableAddress) EVMAddress() *common.Address {
	if len(a.Address) == 0 {
		return nil
	}
	addr := common.BytesToAddress(a.Address)
	return &addr
}

func (a *InteroperableAddress) String() string {
	if addr := a.EVMAddress(); addr != nil {
		return fmt.Sprintf("%s@eip155:%s", addr.Hex(), a.ChainID())
	}
	return fmt.Sprintf("eip155:%s", a.ChainID())
}

// EncodeInteroperableAddress encodes an EVM v1 interoperable address.
// A nil address produces a chain-only reference. Chain IDs whose minimal
// big-endian form exceeds 255 bytes cannot be encoded.
func EncodeInteroperableAddress(chainID *big.Int, addr *common.Address) ([]byte, error) {
	if chainID != nil && chainID.Sign() < 0 {
		return nil, errors.Wrapf(ErrMalformedAddress, "negative chain id %s", chainID)
	}
	chainRef := chainReference(chainID)
	if len(chainRef) > maxChainReferenceLength {
		return nil, errors.Wrapf(ErrMalformedAddress, "chain reference of %d bytes exceeds %d", len(chainRef), maxChainReferenceLength)
	}
	out := make([]byte, 0, len(evmV1Header)+2+len(chainRef)+evmAddressLength)
	out = append(out, evmV1Header...)
	out = append(out, byte(len(chainRef)))
	out = append(out, chainRef...)
	if addr == nil {
		return append(out, 0), nil
	}
	out = append(out, evmAddressLength)
	return append(out, addr.Bytes()...), nil
}

// EncodeAddressOnly encodes an address without a chain reference.
func EncodeAddressOnly(addr common.Address) []byte {
	out := make([]byte, 0, len(evmV1AddressOnlyHeader)+1+evmAddressLength)
	out = append(out, evmV1AddressOnlyHeader...)
	out = append(out, evmAddressLength)
	return append(out, addr.Bytes()...)
}

// DecodeInteroperableAddress decodes bytes produced by EncodeInteroperableAddress
// or EncodeAddressOnly.
func DecodeInteroperableAddress(bz []byte) (*InteroperableAddress, error) {
	if len(bz) < 6 {
		return nil, errors.Wrapf(ErrMalformedAddress, "too short: %d bytes", len(bz))
	}
	if version := binary.BigEndian.Uint16(bz[0:2]); version != InteroperableAddressVersion {
		return nil, errors.Wrapf(ErrMalformedAddress, "unsupported version %d", version)
	}
	if !bytes.Equal(bz[2:4], ChainTypeEVM[:]) {
		return nil, errors.Wrapf(ErrUnsupportedChainType, "chain type 0x%x", bz[2:4])
	}

	chainLen := int(bz[4])
	chainEnd := 5 + chainLen
	if len(bz) < chainEnd+1 {
		return nil, errors.Wrap(ErrMalformedAddress, "missing address length")
	}
	addrLen := int(bz[chainEnd])
	addrEnd := chainEnd + 1 + addrLen
	if len(bz) < addrEnd {
		return nil, errors.Wrapf(ErrMalformedAddress, "truncated: want %d bytes, got %d", addrEnd, len(bz))
	}
	if len(bz) > addrEnd {
		return nil, errors.Wrapf(ErrMalformedAddress, "%d trailing bytes", len(bz)-addrEnd)
	}
	if addrLen != 0 && addrLen != evmAddressLength {
		return nil, errors.Wrapf(ErrMalformedAddress, "unsupported address length %d", addrLen)
	}

	return &InteroperableAddress{
		Version:        InteroperableAddressVersion,
		ChainType:      ChainTypeEVM,
		ChainReference: common.CopyBytes(bz[5:chainEnd]),
		Address:        common.CopyBytes(bz[chainEnd+1 : addrEnd]),
	}, nil
}

// chainReference returns the minimal big-endian form of chainID; zero is a single 0x00.
func chainReference(chainID *big.Int) []byte {
	if chainID == nil || chainID.Sign() == 0 {
		return []byte{0}
	}
	return chainID.Bytes()
}

package core

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// BundleVersion is the only InteropBundle version the codec accepts.
	BundleVersion byte = 0x01
	// CallVersion is the only InteropCall version the codec accepts.
	CallVersion byte = 0x01
	// BundleIdentifier prefixes bundle payloads in L2->L1 messages.
	BundleIdentifier byte = 0x01
)

// InteropBundle is a batch of calls sent from one chain to another.
type InteropBundle struct {
	Version            byte
	SourceChainID      *big.Int
	DestinationChainID *big.Int
	Salt               common.Hash
	Calls              []InteropCall
	Attributes         BundleAttributes
}

// InteropCall is one call of a bundle. Attributes are carried by the
// MessageSent event of the call and are not part of the bundle encoding.
type InteropCall struct {
	Version       byte
	ShadowAccount bool
	To            common.Address
	From          common.Address
	Value         *big.Int
	Data          []byte
	Attributes    []CallAttribute
}

// Recipient returns the call target as an interoperable address on the given chain.
func (c InteropCall) Recipient(destinationChainID *big.Int) ([]byte, error) {
	return EncodeInteroperableAddress(destinationChainID, &c.To)
}

// BundleAttributes restricts who may execute or unbundle. Empty values are permissionless.
type BundleAttributes struct {
	ExecutionAddress []byte
	UnbundlerAddress []byte
}

// CallAttribute is an opaque attribute whose first four bytes are a selector tag.
type CallAttribute []byte

func (a CallAttribute) Selector() ([4]byte, bool) {
	var sel [4]byte
	if len(a) < 4 {
		return sel, false
	}
	copy(sel[:], a[:4])
	return sel, true
}

// Name returns the attribute name when the selector is a known attribute.
func (a CallAttribute) Name() string {
	sel, ok := a.Selector()
	if !ok {
		return ""
	}
	if m, err := InteropABI.MethodById(sel[:]); err == nil {
		return m.RawName
	}
	return ""
}

// Validate checks that the attribute is tagged and, if known, well-formed.
func (a CallAttribute) Validate() error {
	sel, ok := a.Selector()
	if !ok {
		return errors.Newf("attribute has %d bytes, want at least a 4-byte selector", len(a))
	}
	m, err := InteropABI.MethodById(sel[:])
	if err != nil {
		return nil
	}
	if _, err := m.Inputs.Unpack(a[4:]); err != nil {
		return errors.Wrapf(err, "attribute %s", m.RawName)
	}
	return nil
}

// solidity mirrors of the ABI tuples; field order and names must match the components.
type solInteropCall struct {
	Version       [1]byte
	ShadowAccount bool
	To            common.Address
	From          common.Address
	Value         *big.Int
	Data          []byte
}

type solBundleAttributes struct {
	ExecutionAddress []byte
	UnbundlerAddress []byte
}

type solInteropBundle struct {
	Version            [1]byte
	SourceChainId      *big.Int
	DestinationChainId *big.Int
	InteropBundleSalt  [32]byte
	Calls              []solInteropCall
	BundleAttributes   solBundleAttributes
}

func (b *InteropBundle) toSol() solInteropBundle {
	calls := make([]solInteropCall, len(b.Calls))
	for i, c := range b.Calls {
		calls[i] = solInteropCall{
			Version:       [1]byte{c.Version},
			ShadowAccount: c.ShadowAccount,
			To:            c.To,
			From:          c.From,
			Value:         bigOrZero(c.Value),
			Data:          nonNil(c.Data),
		}
	}
	return solInteropBundle{
		Version:            [1]byte{b.Version},
		SourceChainId:      bigOrZero(b.SourceChainID),
		DestinationChainId: bigOrZero(b.DestinationChainID),
		InteropBundleSalt:  b.Salt,
		Calls:              calls,
		BundleAttributes: solBundleAttributes{
			ExecutionAddress: nonNil(b.Attributes.ExecutionAddress),
			UnbundlerAddress: nonNil(b.Attributes.UnbundlerAddress),
		},
	}
}

func bundleFromSol(s *solInteropBundle) (*InteropBundle, error) {
	if s.Version[0] != BundleVersion {
		return nil, errors.Wrapf(ErrMalformedBundle, "unsupported bundle version 0x%02x", s.Version[0])
	}
	calls := make([]InteropCall, len(s.Calls))
	for i, c := range s.Calls {
		calls[i] = InteropCall{
			Version:       c.Version[0],
			ShadowAccount: c.ShadowAccount,
			To:            c.To,
			From:          c.From,
			Value:         c.Value,
			Data:          c.Data,
		}
	}
	return &InteropBundle{
		Version:            s.Version[0],
		SourceChainID:      s.SourceChainId,
		DestinationChainID: s.DestinationChainId,
		Salt:               s.InteropBundleSalt,
		Calls:              calls,
		Attributes: BundleAttributes{
			ExecutionAddress: s.BundleAttributes.ExecutionAddress,
			UnbundlerAddress: s.BundleAttributes.UnbundlerAddress,
		},
	}, nil
}

// Encode returns the canonical encoding, identical to Solidity's abi.encode(bundle).
func (b *InteropBundle) Encode() ([]byte, error) {
	bz, err := bundleArguments.Pack(b.toSol())
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode interop bundle")
	}
	return bz, nil
}

// ContentHash is keccak256 of the canonical encoding. The hash reported by
// the InteropBundleSent event takes precedence when it is known.
func (b *InteropBundle) ContentHash() (common.Hash, error) {
	bz, err := b.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(bz), nil
}

// DecodeBundle parses the canonical encoding of a bundle.
func DecodeBundle(bz []byte) (*InteropBundle, error) {
	out, err := bundleArguments.Unpack(bz)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedBundle, err.Error())
	}
	sol, err := convertBundle(out[0])
	if err != nil {
		return nil, err
	}
	return bundleFromSol(sol)
}

func convertBundle(v interface{}) (sol *solInteropBundle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrMalformedBundle, "unexpected bundle layout: %v", r)
		}
	}()
	return abi.ConvertType(v, new(solInteropBundle)).(*solInteropBundle), nil
}

// SendID identifies one call of a bundle.
func SendID(bundleHash common.Hash, callIndex int) common.Hash {
	bz, err := sendIDArguments.Pack(bundleHash, big.NewInt(int64(callIndex)))
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(bz)
}

// MessageData is the logged payload that the inclusion proof commits to.
func MessageData(encodedBundle []byte) []byte {
	out := make([]byte, 0, 1+len(encodedBundle))
	out = append(out, BundleIdentifier)
	return append(out, encodedBundle...)
}

// ExtractedBundle is a bundle observed in a source transaction.
type ExtractedBundle struct {
	Bundle       *InteropBundle
	Encoded      []byte
	BundleHash   common.Hash
	L2L1MsgHash  common.Hash
	SourceTxHash common.Hash
	LogIndex     uint
	SendIDs      []common.Hash
}

type callView struct {
	Version       hexutil.Bytes   `json:"version"`
	ShadowAccount bool            `json:"shadowAccount"`
	To            common.Address  `json:"to"`
	Recipient     hexutil.Bytes   `json:"recipient,omitempty"`
	From          common.Address  `json:"from"`
	Value         string          `json:"value"`
	Data          hexutil.Bytes   `json:"data"`
	SendID        common.Hash     `json:"sendId"`
	Attributes    []hexutil.Bytes `json:"attributes,omitempty"`
}

type bundleView struct {
	Version            hexutil.Bytes `json:"version"`
	SourceChainID      string        `json:"sourceChainId"`
	DestinationChainID string        `json:"destinationChainId"`
	InteropBundleSalt  common.Hash   `json:"interopBundleSalt"`
	Calls              []callView    `json:"calls"`
	BundleAttributes   struct {
		ExecutionAddress hexutil.Bytes `json:"executionAddress"`
		UnbundlerAddress hexutil.Bytes `json:"unbundlerAddress"`
	} `json:"bundleAttributes"`
}

type extractedBundleJSON struct {
	BundleHash       common.Hash   `json:"bundleHash"`
	L2L1MsgHash      common.Hash   `json:"l2l1MsgHash"`
	SourceTxHash     common.Hash   `json:"sourceTxHash"`
	LogIndex         uint          `json:"logIndex"`
	EncodedBundleHex hexutil.Bytes `json:"encodedBundleHex"`
	Bundle           bundleView    `json:"bundle"`
}

// MarshalJSON renders the bundle with its identifiers. Only the encoded bytes
// are authoritative; the view exists for humans.
func (e *ExtractedBundle) MarshalJSON() ([]byte, error) {
	b := e.Bundle
	v := extractedBundleJSON{
		BundleHash:       e.BundleHash,
		L2L1MsgHash:      e.L2L1MsgHash,
		SourceTxHash:     e.SourceTxHash,
		LogIndex:         e.LogIndex,
		EncodedBundleHex: e.Encoded,
	}
	v.Bundle.Version = []byte{b.Version}
	v.Bundle.SourceChainID = bigOrZero(b.SourceChainID).String()
	v.Bundle.DestinationChainID = bigOrZero(b.DestinationChainID).String()
	v.Bundle.InteropBundleSalt = b.Salt
	v.Bundle.BundleAttributes.ExecutionAddress = nonNil(b.Attributes.ExecutionAddress)
	v.Bundle.BundleAttributes.UnbundlerAddress = nonNil(b.Attributes.UnbundlerAddress)
	v.Bundle.Calls = make([]callView, len(b.Calls))
	for i, c := range b.Calls {
		cv := callView{
			Version:       []byte{c.Version},
			ShadowAccount: c.ShadowAccount,
			To:            c.To,
			From:          c.From,
			Value:         bigOrZero(c.Value).String(),
			Data:          nonNil(c.Data),
		}
		if r, err := c.Recipient(bigOrZero(b.DestinationChainID)); err == nil {
			cv.Recipient = r
		}
		if i < len(e.SendIDs) {
			cv.SendID = e.SendIDs[i]
		}
		for _, a := range c.Attributes {
			cv.Attributes = append(cv.Attributes, hexutil.Bytes(a))
		}
		v.Bundle.Calls[i] = cv
	}
	return json.MarshalIndent(v, "", "  ")
}

// UnmarshalJSON restores an ExtractedBundle from its encoded bytes and identifiers.
func (e *ExtractedBundle) UnmarshalJSON(bz []byte) error {
	var v extractedBundleJSON
	if err := json.Unmarshal(bz, &v); err != nil {
		return err
	}
	bundle, err := DecodeBundle(v.EncodedBundleHex)
	if err != nil {
		return err
	}
	for i := range bundle.Calls {
		if i < len(v.Bundle.Calls) {
			for _, a := range v.Bundle.Calls[i].Attributes {
				bundle.Calls[i].Attributes = append(bundle.Calls[i].Attributes, CallAttribute(a))
			}
		}
	}
	*e = ExtractedBundle{
		Bundle:       bundle,
		Encoded:      v.EncodedBundleHex,
		BundleHash:   v.BundleHash,
		L2L1MsgHash:  v.L2L1MsgHash,
		SourceTxHash: v.SourceTxHash,
		LogIndex:     v.LogIndex,
		SendIDs:      sendIDs(v.BundleHash, len(bundle.Calls)),
	}
	return nil
}

// NewExtractedBundle wraps encoded bundle bytes obtained outside of extraction.
// If bundleHash is zero the content hash is used.
func NewExtractedBundle(encoded []byte, bundleHash common.Hash) (*ExtractedBundle, error) {
	bundle, err := DecodeBundle(encoded)
	if err != nil {
		return nil, err
	}
	if bundleHash == (common.Hash{}) {
		bundleHash = crypto.Keccak256Hash(encoded)
	}
	return &ExtractedBundle{
		Bundle:     bundle,
		Encoded:    common.CopyBytes(encoded),
		BundleHash: bundleHash,
		SendIDs:    sendIDs(bundleHash, len(bundle.Calls)),
	}, nil
}

func sendIDs(bundleHash common.Hash, n int) []common.Hash {
	ids := make([]common.Hash, n)
	for i := range ids {
		ids[i] = SendID(bundleHash, i)
	}
	return ids
}

func (e *ExtractedBundle) String() string {
	return fmt.Sprintf("bundle %s (%d calls, %s -> %s)", e.BundleHash.Hex(), len(e.Bundle.Calls), e.Bundle.SourceChainID, e.Bundle.DestinationChainID)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

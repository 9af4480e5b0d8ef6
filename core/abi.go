package core

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event signatures emitted by the interop system contracts.
const (
	InteropBundleSentSignature = "InteropBundleSent(bytes32,bytes32,(bytes1,uint256,uint256,bytes32,(bytes1,bool,address,address,uint256,bytes)[],(bytes,bytes)))"
	MessageSentSignature       = "MessageSent(bytes32,bytes,bytes,bytes,uint256,bytes[])"
	L1MessageSentSignature     = "L1MessageSent(address,bytes32,bytes)"
	BundleVerifiedSignature    = "BundleVerified(bytes32)"
	BundleExecutedSignature    = "BundleExecuted(bytes32)"
	BundleUnbundledSignature   = "BundleUnbundled(bytes32)"
	CallProcessedSignature     = "CallProcessed(bytes32,uint256,uint8)"
)

var (
	InteropBundleSentTopic = crypto.Keccak256Hash([]byte(InteropBundleSentSignature))
	MessageSentTopic       = crypto.Keccak256Hash([]byte(MessageSentSignature))
	L1MessageSentTopic     = crypto.Keccak256Hash([]byte(L1MessageSentSignature))
	BundleVerifiedTopic    = crypto.Keccak256Hash([]byte(BundleVerifiedSignature))
	BundleExecutedTopic    = crypto.Keccak256Hash([]byte(BundleExecutedSignature))
	BundleUnbundledTopic   = crypto.Keccak256Hash([]byte(BundleUnbundledSignature))
	CallProcessedTopic     = crypto.Keccak256Hash([]byte(CallProcessedSignature))
)

// interopCallComponents mirrors the Solidity InteropCall struct.
var interopCallComponents = []abi.ArgumentMarshaling{
	{Name: "version", Type: "bytes1"},
	{Name: "shadowAccount", Type: "bool"},
	{Name: "to", Type: "address"},
	{Name: "from", Type: "address"},
	{Name: "value", Type: "uint256"},
	{Name: "data", Type: "bytes"},
}

var bundleAttributesComponents = []abi.ArgumentMarshaling{
	{Name: "executionAddress", Type: "bytes"},
	{Name: "unbundlerAddress", Type: "bytes"},
}

var interopBundleComponents = []abi.ArgumentMarshaling{
	{Name: "version", Type: "bytes1"},
	{Name: "sourceChainId", Type: "uint256"},
	{Name: "destinationChainId", Type: "uint256"},
	{Name: "interopBundleSalt", Type: "bytes32"},
	{Name: "calls", Type: "tuple[]", InternalType: "struct InteropCall[]", Components: interopCallComponents},
	{Name: "bundleAttributes", Type: "tuple", InternalType: "struct BundleAttributes", Components: bundleAttributesComponents},
}

var (
	bytes32Type       = mustNewType("bytes32", "", nil)
	bytesType         = mustNewType("bytes", "", nil)
	bytesArrayType    = mustNewType("bytes[]", "", nil)
	addressType       = mustNewType("address", "", nil)
	uint8Type         = mustNewType("uint8", "", nil)
	uint256Type       = mustNewType("uint256", "", nil)
	interopBundleType = mustNewType("tuple", "struct InteropBundle", interopBundleComponents)

	// bundleArguments encodes a bundle the way `abi.encode(bundle)` does.
	bundleArguments = abi.Arguments{{Name: "bundle", Type: interopBundleType}}

	bundleSentArguments = abi.Arguments{
		{Name: "l2l1MsgHash", Type: bytes32Type},
		{Name: "interopBundleHash", Type: bytes32Type},
		{Name: "interopBundle", Type: interopBundleType},
	}

	// messageSentArguments are the non-indexed fields of MessageSent; sendId is topic 1.
	messageSentArguments = abi.Arguments{
		{Name: "sender", Type: bytesType},
		{Name: "recipient", Type: bytesType},
		{Name: "payload", Type: bytesType},
		{Name: "value", Type: uint256Type},
		{Name: "attributes", Type: bytesArrayType},
	}

	sendIDArguments = abi.Arguments{{Type: bytes32Type}, {Type: uint256Type}}

	l1MessageSentArguments = abi.Arguments{{Name: "message", Type: bytesType}}
	callProcessedArguments = abi.Arguments{{Name: "status", Type: uint8Type}}

	// assetIDArguments are hashed into an asset ID: (chainId, vault, token).
	assetIDArguments = abi.Arguments{{Type: uint256Type}, {Type: addressType}, {Type: addressType}}
)

// interopHandlerJSON is the subset of the handler, root storage and attribute
// ABIs the relayer speaks.
const interopHandlerJSON = `[
  {"type":"function","name":"verifyBundle","stateMutability":"nonpayable","inputs":[
    {"name":"_bundle","type":"bytes"},
    {"name":"_proof","type":"tuple","internalType":"struct MessageInclusionProof","components":[
      {"name":"chainId","type":"uint256"},
      {"name":"l1BatchNumber","type":"uint256"},
      {"name":"l2MessageIndex","type":"uint256"},
      {"name":"message","type":"tuple","internalType":"struct L2Message","components":[
        {"name":"txNumberInBatch","type":"uint16"},
        {"name":"sender","type":"address"},
        {"name":"data","type":"bytes"}]},
      {"name":"proof","type":"bytes32[]"}]}],"outputs":[]},
  {"type":"function","name":"executeBundle","stateMutability":"nonpayable","inputs":[
    {"name":"_bundle","type":"bytes"},
    {"name":"_proof","type":"tuple","internalType":"struct MessageInclusionProof","components":[
      {"name":"chainId","type":"uint256"},
      {"name":"l1BatchNumber","type":"uint256"},
      {"name":"l2MessageIndex","type":"uint256"},
      {"name":"message","type":"tuple","internalType":"struct L2Message","components":[
        {"name":"txNumberInBatch","type":"uint16"},
        {"name":"sender","type":"address"},
        {"name":"data","type":"bytes"}]},
      {"name":"proof","type":"bytes32[]"}]}],"outputs":[]},
  {"type":"function","name":"bundleStatus","stateMutability":"view","inputs":[{"name":"bundleHash","type":"bytes32"}],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"callStatus","stateMutability":"view","inputs":[{"name":"bundleHash","type":"bytes32"},{"name":"callIndex","type":"uint256"}],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"interopRoots","stateMutability":"view","inputs":[{"name":"chainId","type":"uint256"},{"name":"batchNumber","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"interopCallValue","stateMutability":"pure","inputs":[{"name":"_interopCallValue","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"indirectCall","stateMutability":"pure","inputs":[{"name":"_indirectCallMessageValue","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"executionAddress","stateMutability":"pure","inputs":[{"name":"_executionAddress","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"unbundlerAddress","stateMutability":"pure","inputs":[{"name":"_unbundlerAddress","type":"bytes"}],"outputs":[]},
  {"type":"error","name":"AttributeAlreadySet","inputs":[{"name":"selector","type":"bytes4"}]},
  {"type":"error","name":"AttributeViolatesRestriction","inputs":[{"name":"selector","type":"bytes4"},{"name":"restriction","type":"uint256"}]},
  {"type":"error","name":"BundleAlreadyProcessed","inputs":[{"name":"bundleHash","type":"bytes32"}]},
  {"type":"error","name":"BundleVerifiedAlready","inputs":[{"name":"bundleHash","type":"bytes32"}]},
  {"type":"error","name":"CallAlreadyExecuted","inputs":[{"name":"bundleHash","type":"bytes32"},{"name":"callIndex","type":"uint256"}]},
  {"type":"error","name":"CallNotExecutable","inputs":[{"name":"bundleHash","type":"bytes32"},{"name":"callIndex","type":"uint256"}]},
  {"type":"error","name":"CanNotUnbundle","inputs":[{"name":"bundleHash","type":"bytes32"}]},
  {"type":"error","name":"ExecutingNotAllowed","inputs":[{"name":"bundleHash","type":"bytes32"},{"name":"callerAddress","type":"bytes"},{"name":"executionAddress","type":"bytes"}]},
  {"type":"error","name":"IndirectCallValueMismatch","inputs":[{"name":"expected","type":"uint256"},{"name":"actual","type":"uint256"}]},
  {"type":"error","name":"InteroperableAddressChainReferenceNotEmpty","inputs":[{"name":"interoperableAddress","type":"bytes"}]},
  {"type":"error","name":"InteroperableAddressNotEmpty","inputs":[{"name":"interoperableAddress","type":"bytes"}]},
  {"type":"error","name":"InvalidInteropBundleVersion","inputs":[]},
  {"type":"error","name":"InvalidInteropCallVersion","inputs":[]},
  {"type":"error","name":"MessageNotIncluded","inputs":[]},
  {"type":"error","name":"UnauthorizedMessageSender","inputs":[{"name":"expected","type":"address"},{"name":"actual","type":"address"}]},
  {"type":"error","name":"UnbundlingNotAllowed","inputs":[{"name":"bundleHash","type":"bytes32"},{"name":"callerAddress","type":"bytes"},{"name":"unbundlerAddress","type":"bytes"}]},
  {"type":"error","name":"WrongCallStatusLength","inputs":[{"name":"bundleCallsLength","type":"uint256"},{"name":"providedCallStatusLength","type":"uint256"}]},
  {"type":"error","name":"WrongDestinationChainId","inputs":[{"name":"bundleHash","type":"bytes32"},{"name":"expected","type":"uint256"},{"name":"actual","type":"uint256"}]},
  {"type":"error","name":"WrongSourceChainId","inputs":[{"name":"bundleHash","type":"bytes32"},{"name":"expected","type":"uint256"},{"name":"actual","type":"uint256"}]}
]`

// InteropABI is the parsed interop handler, root storage and attribute ABI.
var InteropABI = mustParseABI(interopHandlerJSON)

func mustNewType(t, internalType string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, internalType, components)
	if err != nil {
		panic(err)
	}
	return typ
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

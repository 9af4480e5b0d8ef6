package core

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
	panicSelector       = []byte{0x4e, 0x48, 0x7b, 0x71}

	panicArguments = abi.Arguments{{Type: uint256Type}}
)

// reverts that mean the bundle or call was processed by an earlier submission
var alreadyProcessedErrors = []string{
	"BundleAlreadyProcessed",
	"BundleVerifiedAlready",
	"CallAlreadyExecuted",
}

// DecodeRevertReason renders revert data as a human readable reason.
// Unknown payloads are returned as hex.
func DecodeRevertReason(data []byte) string {
	if len(data) < 4 {
		if len(data) == 0 {
			return ""
		}
		return hexutil.Encode(data)
	}
	switch {
	case bytes.Equal(data[:4], errorStringSelector):
		if reason, err := abi.UnpackRevert(data); err == nil {
			return reason
		}
	case bytes.Equal(data[:4], panicSelector):
		if out, err := panicArguments.Unpack(data[4:]); err == nil {
			return fmt.Sprintf("panic(0x%x)", out[0].(*big.Int))
		}
	}
	if name, args, ok := decodeCustomError(data); ok {
		return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
	}
	return fmt.Sprintf("unknown revert selector %s", hexutil.Encode(data[:4]))
}

// IsAlreadyProcessedRevert reports whether data is a revert raised for a
// bundle or call that was already processed.
func IsAlreadyProcessedRevert(data []byte) bool {
	name, _, ok := decodeCustomError(data)
	if !ok {
		return false
	}
	for _, n := range alreadyProcessedErrors {
		if n == name {
			return true
		}
	}
	return false
}

func decodeCustomError(data []byte) (string, []string, bool) {
	if len(data) < 4 {
		return "", nil, false
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	abiErr, err := InteropABI.ErrorByID(sel)
	if err != nil {
		return "", nil, false
	}
	values, err := abiErr.Inputs.Unpack(data[4:])
	if err != nil {
		return abiErr.Name, nil, true
	}
	args := make([]string, len(values))
	for i, v := range values {
		args[i] = formatABIValue(v)
	}
	return abiErr.Name, args, true
}

func formatABIValue(v interface{}) string {
	switch v := v.(type) {
	case [32]byte:
		return hexutil.Encode(v[:])
	case [4]byte:
		return hexutil.Encode(v[:])
	case []byte:
		return hexutil.Encode(v)
	case *big.Int:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

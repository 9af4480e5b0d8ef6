package semconv

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	// ChainIDKey represents the chain ID.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "6565"
	ChainIDKey = attribute.Key("chain_id")

	// DirectionKey represents the direction.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "src", "dst"
	DirectionKey = attribute.Key("direction")

	// TxHashKey represents the transaction hash.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "0x5f0c...a1b2"
	TxHashKey = attribute.Key("tx_hash")

	// BundleHashKey represents the hash of an interop bundle.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "0x9e4d...0c11"
	BundleHashKey = attribute.Key("bundle_hash")

	// BatchNumberKey represents the settlement batch number of the source chain.
	//
	// Type: int
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: 1024
	BatchNumberKey = attribute.Key("batch_number")

	// MessageIndexKey represents the index of an L2->L1 message in a transaction.
	//
	// Type: int
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: 0
	MessageIndexKey = attribute.Key("message_index")

	// ModeKey represents the handler entrypoint used for a submission.
	//
	// Type: string
	// RequirementLevel: Recommended
	// Stability: Development
	// Examples: "verify", "execute"
	ModeKey = attribute.Key("mode")

	// PackageKey represents the package implementing a traced method.
	//
	// Type: string
	// RequirementLevel: Optional
	// Stability: Development
	// Examples: "github.com/hyperledger-labs/interop-relayer/chains/ethereum"
	PackageKey = attribute.Key("package")
)

// AttributeGroup prefixes the given key to all attributes.
//
// For example, if the key is "foo" and the key of an attribute is "bar", the new key will be "foo.bar".
func AttributeGroup(key string, attributes ...attribute.KeyValue) []attribute.KeyValue {
	newAttrs := make([]attribute.KeyValue, 0, len(attributes))
	for _, attr := range attributes {
		newAttrs = append(newAttrs, attribute.KeyValue{
			Key:   attribute.Key(key + "." + string(attr.Key)),
			Value: attr.Value,
		})

	}
	return newAttrs
}

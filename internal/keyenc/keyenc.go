// Package keyenc produces canonical, comparable encodings of query key components.
//
// Every component is encoded as one deterministic CBOR data item (RFC 8949 core
// deterministic encoding). CBOR items are self-delimiting, so the concatenation of
// component encodings is unambiguous and a key has a given prefix exactly when its
// encoding starts with the prefix's encoding.
package keyenc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var enc = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// UnsupportedError reports a component that is not a primitive value.
type UnsupportedError struct {
	Index int
	Value any
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("keyenc: component %d has unsupported type %T", e.Index, e.Value)
}

// Encode returns the canonical encoding of parts.
func Encode(parts []any) (string, error) {
	var buf []byte
	for i, p := range parts {
		if !primitive(p) {
			return "", &UnsupportedError{Index: i, Value: p}
		}
		b, err := enc.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("keyenc: component %d: %w", i, err)
		}
		buf = append(buf, b...)
	}
	return string(buf), nil
}

func primitive(v any) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

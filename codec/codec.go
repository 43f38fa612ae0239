package codec

import "fmt"

// Codec encodes/decodes cached payloads of type V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Format names a payload encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCBOR    Format = "cbor"
	FormatMsgpack Format = "msgpack"
)

// For returns the codec for format. The empty format selects JSON.
// maxDecode > 0 wraps the codec in a LimitCodec.
func For[V any](format Format, maxDecode int) (Codec[V], error) {
	var inner Codec[V]
	switch format {
	case "", FormatJSON:
		inner = JSON[V]{}
	case FormatCBOR:
		c, err := NewCBOR[V](true)
		if err != nil {
			return nil, err
		}
		inner = c
	case FormatMsgpack:
		inner = Msgpack[V]{}
	default:
		return nil, fmt.Errorf("codec: unknown format %q", format)
	}
	if maxDecode > 0 {
		return LimitCodec[V]{Inner: inner, MaxDecode: maxDecode}, nil
	}
	return inner, nil
}

package codec

import json "github.com/goccy/go-json"

// JSON encodes with goccy/go-json, which is wire-compatible with encoding/json
// and honors the same struct tags. The zero value is ready to use.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

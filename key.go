package docsync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/docsync/internal/keyenc"
)

// Key identifies one cached collection or object, e.g. K("documents", folderID).
// Components must be primitives: string, bool, nil, integers or floats.
// Keys are equal iff their components are element-wise equal.
type Key []any

// K builds a Key.
func K(parts ...any) Key { return Key(parts) }

// Equal reports element-wise equality. Invalid keys are never equal.
func (k Key) Equal(o Key) bool {
	a, err := k.id()
	if err != nil {
		return false
	}
	b, err := o.id()
	return err == nil && a == b
}

// HasPrefix reports whether the first len(p) components of k equal p.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	a, err := k.id()
	if err != nil {
		return false
	}
	b, err := p.id()
	return err == nil && strings.HasPrefix(a, b)
}

func (k Key) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, p := range k {
		if i > 0 {
			sb.WriteByte(',')
		}
		switch v := p.(type) {
		case string:
			sb.WriteString(strconv.Quote(v))
		case nil:
			sb.WriteString("null")
		default:
			fmt.Fprint(&sb, v)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// complete is the "enabled" guard: a key with an empty string or nil
// component names nothing fetchable yet.
func (k Key) complete() bool {
	for _, p := range k {
		if p == nil {
			return false
		}
		if s, ok := p.(string); ok && s == "" {
			return false
		}
	}
	return true
}

func (k Key) id() (string, error) {
	s, err := keyenc.Encode(k)
	if err != nil {
		return "", &KeyError{Key: k.String(), Err: err}
	}
	return s, nil
}

func (k Key) clone() Key {
	return append(Key(nil), k...)
}

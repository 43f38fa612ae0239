package docsync

import (
	"errors"
	"testing"
)

func TestKeyEqual(t *testing.T) {
	if !K("documents", "f1").Equal(DocumentsKey("f1")) {
		t.Fatalf("equal keys reported unequal")
	}
	if K("documents", "f1").Equal(K("documents", "f2")) {
		t.Fatalf("different keys reported equal")
	}
	if !K("page", 1).Equal(K("page", int64(1))) {
		t.Fatalf("integer components should compare by value")
	}
	if K("page", 1).Equal(K("page", "1")) {
		t.Fatalf("string and int components must differ")
	}
}

func TestKeyHasPrefix(t *testing.T) {
	k := DocumentsKey("f1")
	if !k.HasPrefix(K(CollectionDocuments)) {
		t.Fatalf("expected prefix match")
	}
	if !k.HasPrefix(k) {
		t.Fatalf("a key is its own prefix")
	}
	if k.HasPrefix(K(CollectionDocument)) {
		t.Fatalf(`["document"] must not match ["documents", ...]`)
	}
	if K(CollectionDocuments).HasPrefix(k) {
		t.Fatalf("longer pattern cannot be a prefix")
	}
}

func TestKeyInvalid(t *testing.T) {
	s := NewStore(StoreOptions{})
	_, err := s.Fetch(ctxT(t), K("documents", []int{1}), static("x"))
	var ke *KeyError
	if !errors.As(err, &ke) {
		t.Fatalf("want *KeyError, got %v", err)
	}
}

func TestKeyString(t *testing.T) {
	if got := K("documents", "f1", 2, nil).String(); got != `["documents","f1",2,null]` {
		t.Fatalf("String()=%s", got)
	}
}

package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies remote failures.
type Kind uint8

const (
	// KindNetwork covers transport failures and non-2xx responses not listed below.
	KindNetwork Kind = iota
	// KindNotFound is a 404: the entity does not exist.
	KindNotFound
	// KindValidation is a rejected write (400/422).
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "network"
	}
}

var (
	ErrNetwork    = errors.New("remote: network or server error")
	ErrNotFound   = errors.New("remote: not found")
	ErrValidation = errors.New("remote: validation failed")
)

const genericMessage = "An error occurred"

// Error is returned for every failed call. StatusCode is 0 for transport failures.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error // transport cause, if any
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

func kindForStatus(code int) Kind {
	switch code {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindNetwork
	}
}

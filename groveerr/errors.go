// Package groveerr defines the tagged error kinds surfaced by every layer
// of GroveDB, from storage up through batches and proofs.
package groveerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for each of the ten tagged kinds. Wrap these with
// fmt.Errorf("...: %w", ErrX) to attach context; classify with
// errors.Is or Kind.
var (
	ErrPathNotFound           = errors.New("grovedb: path not found")
	ErrElementNotFound        = errors.New("grovedb: element not found")
	ErrCorruptedData          = errors.New("grovedb: corrupted data")
	ErrInvalidProof           = errors.New("grovedb: invalid proof")
	ErrCyclicReference        = errors.New("grovedb: cyclic reference")
	ErrReferenceLimitExceeded = errors.New("grovedb: reference limit exceeded")
	ErrTypeMismatch           = errors.New("grovedb: type mismatch")
	ErrCapacityExceeded       = errors.New("grovedb: capacity exceeded")
	ErrStorageError           = errors.New("grovedb: storage error")
	ErrNotSupported           = errors.New("grovedb: not supported")
)

// Kind identifies which of the ten tagged error kinds an error belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindPathNotFound
	KindElementNotFound
	KindCorruptedData
	KindInvalidProof
	KindCyclicReference
	KindReferenceLimitExceeded
	KindTypeMismatch
	KindCapacityExceeded
	KindStorageError
	KindNotSupported
)

var kindSentinels = []struct {
	kind Kind
	err  error
}{
	{KindPathNotFound, ErrPathNotFound},
	{KindElementNotFound, ErrElementNotFound},
	{KindCorruptedData, ErrCorruptedData},
	{KindInvalidProof, ErrInvalidProof},
	{KindCyclicReference, ErrCyclicReference},
	{KindReferenceLimitExceeded, ErrReferenceLimitExceeded},
	{KindTypeMismatch, ErrTypeMismatch},
	{KindCapacityExceeded, ErrCapacityExceeded},
	{KindStorageError, ErrStorageError},
	{KindNotSupported, ErrNotSupported},
}

// Classify returns the Kind of err, or KindUnknown if it does not wrap one
// of the ten sentinel errors.
func Classify(err error) Kind {
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	return KindUnknown
}

// Wrap is a thin helper mirroring the fmt.Errorf("...: %w", err)
// convention used throughout, attaching a sentinel kind to contextual
// detail.
func Wrap(kind error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, kind)
}

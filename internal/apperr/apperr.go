// Package apperr classifies failures so that every layer can report them
// the same way and the HTTP boundary can render them without leaking details.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Internal Kind = iota
	InvalidImage
	ModelInference
	SaliencyComputation
	LayerResolution
	InvalidScores
	Unauthenticated
	InvalidInput
	NotFound
	Conflict
)

var kindNames = map[Kind]string{
	Internal:            "internal",
	InvalidImage:        "invalid image",
	ModelInference:      "model inference",
	SaliencyComputation: "saliency computation",
	LayerResolution:     "layer resolution",
	InvalidScores:       "invalid scores",
	Unauthenticated:     "unauthenticated",
	InvalidInput:        "invalid input",
	NotFound:            "not found",
	Conflict:            "conflict",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so callers can write
// errors.Is(err, &apperr.Error{Kind: apperr.InvalidImage}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// E builds a classified error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in the chain,
// or Internal when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

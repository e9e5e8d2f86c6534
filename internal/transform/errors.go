package transform

import "errors"

var (
	// ErrUnknown is returned when a transform or preprocessor name is not registered.
	ErrUnknown = errors.New("unknown transform")

	// ErrRejected is returned when a transform rejects its input.
	ErrRejected = errors.New("transform rejected input")
)

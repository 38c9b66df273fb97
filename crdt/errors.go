package crdt

import "errors"

var (
	ErrTypeMismatch = errors.New("crdt: type mismatch")
	ErrInvalidPath  = errors.New("crdt: invalid path")
)

package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrInvalidLimit     = errors.New("invalid snapshot limit")
	ErrUnsupportedOrder = errors.New("unsupported ordering")
	ErrClosed           = errors.New("store closed")
	ErrCorruptEntry     = errors.New("corrupt stream entry")
	ErrOutsideRetention = errors.New("reading is older than the retained window")
)

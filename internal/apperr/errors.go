package apperr

import "errors"

var (
	ErrNotADirectory    = errors.New("not a directory")
	ErrUnknownDirectory = errors.New("unknown directory")
	ErrInvalidPattern   = errors.New("invalid pattern")
	ErrInvalidMode      = errors.New("invalid output mode")
)

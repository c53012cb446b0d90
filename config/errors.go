package config

import "errors"

var (
	ErrEmptyPath         = errors.New("config: empty path")
	ErrUnsupportedFormat = errors.New("config: unsupported format")
	ErrLoadFailed        = errors.New("config: load failed")
	ErrParseFailed       = errors.New("config: parse failed")
	ErrUnmarshalFailed   = errors.New("config: unmarshal failed")
	ErrInvalidConfig     = errors.New("config: invalid config")
)

package config

import "errors"

var (
	// ErrParsingConfig wraps env tag parsing failures.
	ErrParsingConfig = errors.New("config: failed to parse environment")

	// ErrConfigNotLoaded indicates the cached copy vanished between parse
	// and read-back. Practically unreachable.
	ErrConfigNotLoaded = errors.New("config: configuration has not been loaded")

	// ErrNilPointer indicates Load was handed a nil destination.
	ErrNilPointer = errors.New("config: nil pointer provided")

	// ErrEnvFileNotFound indicates an explicitly named env file is missing.
	ErrEnvFileNotFound = errors.New("config: env file not found")
)

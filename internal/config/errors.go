package config

import "errors"

var (
	// ErrInvalid is wrapped by every validation failure
	ErrInvalid = errors.New("invalid configuration")

	// ErrNoCommand indicates no command was given
	ErrNoCommand = errors.New("no command given")
)

package config

import "errors"

var (
	// ErrConfigNotFound is returned when the job file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidConfig is returned by Load when validation reports errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

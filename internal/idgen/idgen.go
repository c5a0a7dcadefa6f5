// Package idgen generates run identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// RunPrefix is prepended to every run ID.
const RunPrefix = "run-"

// Alphabet is lower-case only so that run IDs are safe in object keys on
// case-insensitive stores.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 12

// RunID returns a new unique run identifier.
func RunID() (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return RunPrefix + id, nil
}

// MustRunID is like RunID but panics on failure, which only happens when the
// system random source is broken.
func MustRunID() string {
	id, err := RunID()
	if err != nil {
		panic(err)
	}
	return id
}

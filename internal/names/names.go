// Package names generates readable names for diagnostic jobs.
package names

import (
	"errors"
	"fmt"
	"strings"

	"github.com/docker/docker/pkg/namesgenerator"
)

// ErrExhausted is returned when no unused name could be found.
var ErrExhausted = errors.New("no unused name found")

// ExistsFn reports whether a name is already taken.
type ExistsFn func(name string) bool

// Generate returns a random adjective-surname pair (e.g., "focused-turing").
func Generate() string {
	return strings.ReplaceAll(namesgenerator.GetRandomName(0), "_", "-")
}

// Job returns a name for a job of the given kind (e.g.,
// "sound-speed-focused-turing").
func Job(kind string) string {
	return prefix(kind) + Generate()
}

// UniqueJob returns a job name for kind that exists reports as free.
// It gives up after maxAttempts tries; 0 means 100.
func UniqueJob(kind string, exists ExistsFn, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = 100
	}

	for range maxAttempts {
		name := Job(kind)
		if exists == nil || !exists(name) {
			return name, nil
		}
	}

	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, maxAttempts)
}

func prefix(kind string) string {
	kind = strings.ReplaceAll(strings.TrimSpace(kind), "_", "-")
	if kind == "" {
		return ""
	}
	return kind + "-"
}

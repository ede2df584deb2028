package idgen

import "github.com/google/uuid"

// NewFunc returns a new globally unique identifier. Tests may replace it.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier as string.
func New() string { return NewFunc() }

// WithPrefix returns prefix followed by a new identifier.
func WithPrefix(prefix string) string { return prefix + NewFunc() }

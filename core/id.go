package core

import "github.com/google/uuid"

// NewID returns a random identifier (UUID v4).
func NewID() string { return uuid.NewString() }

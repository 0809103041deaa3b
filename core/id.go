package core

import "github.com/google/uuid"

// NewID returns a random UUID string used for run and transcript identifiers.
func NewID() string { return uuid.NewString() }

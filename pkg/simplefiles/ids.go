package simplefiles

import "github.com/google/uuid"

// NewID returns a random (version 4) UUID string. The 122 random bits are
// read from crypto/rand, so concurrent callers never need coordination.
func NewID() string {
	return uuid.NewString()
}

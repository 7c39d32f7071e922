package challenge

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/layer-3/energygate/ports"
)

// UUIDIssuer issues random version 4 UUIDs as connection challenges
type UUIDIssuer struct{}

// NewUUIDIssuer creates a new challenge issuer
func NewUUIDIssuer() ports.ChallengeIssuer {
	return UUIDIssuer{}
}

// Issue returns a fresh challenge backed by 122 bits of crypto/rand output
func (UUIDIssuer) Issue() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return id.String(), nil
}

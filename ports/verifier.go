package ports

// Verifier recovers the signer of a personal-sign message
type Verifier interface {
	// Recover returns the checksummed address that produced signature over message.
	Recover(message string, signature []byte) (string, error)
}

// ChallengeIssuer generates per-connection challenge tokens
type ChallengeIssuer interface {
	Issue() (string, error)
}

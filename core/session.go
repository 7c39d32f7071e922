package core

import (
	"fmt"
	"time"
)

// State is a step of the connection protocol.
type State int

const (
	StateConnected State = iota
	StateChallenged
	StateAuthenticated
	StateRejected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateChallenged:
		return "challenged"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateDisconnected
}

// Session is the protocol state of one live connection
type Session struct {
	ID              string    // Connection handle assigned by the transport
	Challenge       string    // Token issued at connect, immutable once set
	Wallet          string    // Lowercase address, set only after verification
	State           State     // Current protocol state
	ConnectedAt     time.Time // When the transport connection was accepted
	AuthenticatedAt time.Time // When the signature was verified
}

// NewSession creates a session in the Connected state.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:          id,
		State:       StateConnected,
		ConnectedAt: now,
	}
}

// IssueChallenge moves Connected -> Challenged.
func (s *Session) IssueChallenge(token string) error {
	if s.State != StateConnected {
		return fmt.Errorf("issue challenge in %s: %w", s.State, ErrInvalidTransition)
	}
	s.Challenge = token
	s.State = StateChallenged
	return nil
}

// Authenticate moves Challenged -> Authenticated and binds the wallet.
func (s *Session) Authenticate(wallet string, now time.Time) error {
	if s.State != StateChallenged {
		return fmt.Errorf("authenticate in %s: %w", s.State, ErrInvalidTransition)
	}
	s.Wallet = NormalizeWallet(wallet)
	s.AuthenticatedAt = now
	s.State = StateAuthenticated
	return nil
}

// Reject moves Challenged -> Rejected.
func (s *Session) Reject() error {
	if s.State != StateChallenged {
		return fmt.Errorf("reject in %s: %w", s.State, ErrInvalidTransition)
	}
	s.State = StateRejected
	return nil
}

// Disconnect is valid from any state; a rejected session stays rejected.
func (s *Session) Disconnect() {
	if s.State == StateRejected {
		return
	}
	s.State = StateDisconnected
}

// Authenticated reports whether the wallet has been verified.
func (s *Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionHappyPath(t *testing.T) {
	now := time.Now()
	s := NewSession("conn-1", now)
	assert.Equal(t, StateConnected, s.State)

	require.NoError(t, s.IssueChallenge("c1"))
	assert.Equal(t, StateChallenged, s.State)
	assert.Equal(t, "c1", s.Challenge)
	assert.Empty(t, s.Wallet)

	require.NoError(t, s.Authenticate("0xABCdef", now))
	assert.True(t, s.Authenticated())
	assert.Equal(t, "0xabcdef", s.Wallet)

	s.Disconnect()
	assert.Equal(t, StateDisconnected, s.State)
	assert.True(t, s.State.Terminal())
}

func TestSessionInvalidTransitions(t *testing.T) {
	s := NewSession("conn-1", time.Now())

	assert.ErrorIs(t, s.Authenticate("0xabc", time.Now()), ErrInvalidTransition)
	assert.ErrorIs(t, s.Reject(), ErrInvalidTransition)

	require.NoError(t, s.IssueChallenge("c1"))
	assert.ErrorIs(t, s.IssueChallenge("c2"), ErrInvalidTransition)
	assert.Equal(t, "c1", s.Challenge)

	require.NoError(t, s.Reject())
	assert.ErrorIs(t, s.Authenticate("0xabc", time.Now()), ErrInvalidTransition)
	assert.Empty(t, s.Wallet)

	s.Disconnect()
	assert.Equal(t, StateRejected, s.State)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "challenged", StateChallenged.String())
	assert.Equal(t, "state(42)", State(42).String())
}

package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemainingEnergy(t *testing.T) {
	tests := []struct {
		name string
		used int
		want int
	}{
		{"no usage", 0, 100},
		{"some usage", 37, 63},
		{"exhausted", 100, 0},
		{"over budget", 250, 0},
		{"negative count", -5, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RemainingEnergy(MaxEnergy, tt.used))
		})
	}
}

func TestDayUsesLocalCalendar(t *testing.T) {
	ts := time.Date(2024, 3, 9, 12, 0, 0, 0, time.Local)
	assert.Equal(t, "2024-03-09", Day(ts))
}

func TestSignedMessage(t *testing.T) {
	claim := ClientAuth{Wallet: "0xAbC", UUID: "c1", Nonce: "n1"}
	assert.Equal(t, "0xAbC:c1:n1", claim.SignedMessage())
	assert.Equal(t, KindClientAuth, claim.Kind())
}

func TestMessageKindNames(t *testing.T) {
	assert.Equal(t, "Profile", KindProfile.TypeName())
	assert.Equal(t, "", MessageKind(9).TypeName())
	assert.Equal(t, "kind(9)", MessageKind(9).String())
}

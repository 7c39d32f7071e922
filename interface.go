package energygate

import (
	"context"
)

// Client represents the public interface for connecting to an energy gateway
type Client interface {
	// Challenge returns the uuid issued by the gateway on connect
	Challenge() string

	// Wallet returns the address that is claimed on Authenticate
	Wallet() string

	// Authenticate proves ownership of the wallet and returns today's remaining energy
	Authenticate(ctx context.Context, nonce string) (int, error)

	// Close closes the connection
	Close() error
}

// Package energygate is a Go client for the energy gateway websocket protocol.
//
//	client, err := energygate.Dial(ctx, "ws://localhost:8999/ws", key)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	energies, err := client.Authenticate(ctx, nonce)
package energygate

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"

	"github.com/layer-3/energygate/adapters/codec"
	"github.com/layer-3/energygate/adapters/verifier"
	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/ports"
)

const defaultTimeout = 30 * time.Second

type options struct {
	codec   ports.Codec
	wallet  string
	header  http.Header
	timeout time.Duration
}

// Option configures Dial.
type Option func(*options)

// WithCodec replaces the built-in protobuf codec.
func WithCodec(c ports.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithWallet sets the claimed wallet string. It defaults to the checksummed
// address of the key; the gateway compares case-insensitively.
func WithWallet(wallet string) Option {
	return func(o *options) { o.wallet = wallet }
}

// WithHeader adds headers to the websocket handshake, e.g. Origin.
func WithHeader(header http.Header) Option {
	return func(o *options) { o.header = header }
}

// WithTimeout bounds each read when ctx has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WSClient is a Client over gorilla/websocket.
type WSClient struct {
	conn      *websocket.Conn
	codec     ports.Codec
	key       *ecdsa.PrivateKey
	wallet    string
	challenge string
	timeout   time.Duration

	mu       sync.Mutex
	energies int
	authed   bool
}

var _ Client = (*WSClient)(nil)

// Dial connects to the gateway and waits for the challenge.
func Dial(ctx context.Context, url string, key *ecdsa.PrivateKey, opts ...Option) (*WSClient, error) {
	if key == nil {
		return nil, ErrNilKey
	}

	o := options{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	if o.codec == nil {
		schema, err := codec.DefaultSchema()
		if err != nil {
			return nil, err
		}
		o.codec = codec.NewProtobufCodec(schema)
	}
	if o.wallet == "" {
		o.wallet = crypto.PubkeyToAddress(key.PublicKey).Hex()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, o.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	c := &WSClient{
		conn:    conn,
		codec:   o.codec,
		key:     key,
		wallet:  o.wallet,
		timeout: o.timeout,
	}

	msg, err := c.read(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	v, ok := msg.(core.UUIDValidation)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%w: got %s", ErrNoChallenge, msg.Kind())
	}
	c.challenge = v.UUID

	return c, nil
}

// Challenge returns the uuid issued by the gateway.
func (c *WSClient) Challenge() string { return c.challenge }

// Wallet returns the claimed wallet.
func (c *WSClient) Wallet() string { return c.wallet }

// Authenticate signs wallet:uuid:nonce and waits for the Profile reply.
// ErrAuthenticationRejected means the gateway closed the connection.
func (c *WSClient) Authenticate(ctx context.Context, nonce string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authed {
		return c.energies, ErrAlreadyAuthenticated
	}

	claim, err := SignAuth(c.key, c.wallet, c.challenge, nonce)
	if err != nil {
		return 0, err
	}
	data, err := c.codec.Encode(claim)
	if err != nil {
		return 0, err
	}

	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return 0, err
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return 0, fmt.Errorf("failed to send ClientAuth: %w", err)
	}

	for {
		msg, err := c.read(ctx)
		if err != nil {
			return 0, err
		}
		if profile, ok := msg.(core.Profile); ok {
			c.authed = true
			c.energies = int(profile.Energies)
			return c.energies, nil
		}
	}
}

// Close closes the connection.
func (c *WSClient) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// read returns the next decodable message, skipping frames it cannot decode.
func (c *WSClient) read(ctx context.Context) (core.Message, error) {
	for {
		if err := c.conn.SetReadDeadline(c.deadline(ctx)); err != nil {
			return nil, err
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, fmt.Errorf("read timed out: %w", err)
			}
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationRejected, err)
		}

		msg, err := c.codec.Decode(data)
		if err != nil {
			continue
		}
		return msg, nil
	}
}

func (c *WSClient) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(c.timeout)
}

// SignAuth builds a ClientAuth for wallet signed by key over wallet:uuid:nonce.
func SignAuth(key *ecdsa.PrivateKey, wallet, uuid, nonce string) (core.ClientAuth, error) {
	if key == nil {
		return core.ClientAuth{}, ErrNilKey
	}
	sig, err := verifier.Sign(core.SignedMessage(wallet, uuid, nonce), key)
	if err != nil {
		return core.ClientAuth{}, fmt.Errorf("failed to sign: %w", err)
	}
	return core.ClientAuth{
		Wallet: wallet,
		UUID:   uuid,
		Nonce:  nonce,
		Sign:   hexutil.Encode(sig),
	}, nil
}

package http

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/energygate/adapters/challenge"
	"github.com/layer-3/energygate/adapters/codec"
	"github.com/layer-3/energygate/adapters/events"
	"github.com/layer-3/energygate/adapters/ledger"
	"github.com/layer-3/energygate/adapters/verifier"
	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/ports"
	"github.com/layer-3/energygate/service"
)

type testServer struct {
	t        *testing.T
	server   *httptest.Server
	handlers *GatewayHandlers
	codec    *codec.ProtobufCodec
	ledger   *ledger.MemoryLedger
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	mem := ledger.NewMemoryLedger()
	s := newTestServerWithLedger(t, opts, mem)
	s.ledger = mem
	return s
}

func newTestServerWithLedger(t *testing.T, opts Options, usage ports.Ledger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	schema, err := codec.DefaultSchema()
	require.NoError(t, err)
	pbCodec := codec.NewProtobufCodec(schema)

	gateway := service.NewGatewayService(
		pbCodec,
		challenge.NewUUIDIssuer(),
		verifier.NewEthVerifier(),
		usage,
		events.NopPublisher{},
		zerolog.Nop(),
		service.DefaultOptions(),
	)
	handlers := NewGatewayHandlers(gateway, opts, zerolog.Nop())
	server := httptest.NewServer(SetupRouter(handlers, zerolog.Nop()))

	t.Cleanup(func() {
		handlers.CloseAll()
		server.Close()
	})

	return &testServer{t: t, server: server, handlers: handlers, codec: pbCodec}
}

func (s *testServer) dial(header http.Header) *websocket.Conn {
	s.t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *testServer) read(conn *websocket.Conn) core.Message {
	s.t.Helper()
	require.NoError(s.t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(s.t, err)
	require.Equal(s.t, websocket.BinaryMessage, messageType)
	msg, err := s.codec.Decode(data)
	require.NoError(s.t, err)
	return msg
}

func (s *testServer) writeClaim(conn *websocket.Conn, key *ecdsa.PrivateKey, wallet, uuid string) {
	s.t.Helper()
	sig, err := verifier.Sign(core.SignedMessage(wallet, uuid, "n1"), key)
	require.NoError(s.t, err)
	data, err := s.codec.Encode(core.ClientAuth{Wallet: wallet, UUID: uuid, Nonce: "n1", Sign: hexutil.Encode(sig)})
	require.NoError(s.t, err)
	require.NoError(s.t, conn.WriteMessage(websocket.BinaryMessage, data))
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatal("connection was not closed")
		}
		return
	}
}

// stallingLedger blocks every count until its context is canceled.
type stallingLedger struct {
	startOnce  sync.Once
	cancelOnce sync.Once
	started    chan struct{}
	canceled   chan struct{}
}

func newStallingLedger() *stallingLedger {
	return &stallingLedger{
		started:  make(chan struct{}),
		canceled: make(chan struct{}),
	}
}

func (l *stallingLedger) CountUsage(ctx context.Context, _ string, _ string) (int, error) {
	l.startOnce.Do(func() { close(l.started) })
	<-ctx.Done()
	l.cancelOnce.Do(func() { close(l.canceled) })
	return 0, ctx.Err()
}

func (l *stallingLedger) RecordUsage(context.Context, string, time.Time) error { return nil }

func waitFor(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("%s: timeout after %v", msg, timeout)
	}
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestWebSocketAuthentication(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	key, wallet := newKey(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.ledger.RecordUsage(context.Background(), wallet, time.Now()))
	}

	conn := s.dial(nil)
	v, ok := s.read(conn).(core.UUIDValidation)
	require.True(t, ok)

	s.writeClaim(conn, key, wallet, v.UUID)
	assert.Equal(t, core.Profile{Energies: 97}, s.read(conn))

	// The connection stays open after authentication.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x08, 0x07}))
	assert.Eventually(t, func() bool { return s.handlers.Connections() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsWrongSigner(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	_, wallet := newKey(t)
	otherKey, _ := newKey(t)

	conn := s.dial(nil)
	v, ok := s.read(conn).(core.UUIDValidation)
	require.True(t, ok)

	s.writeClaim(conn, otherKey, wallet, v.UUID)
	expectClosed(t, conn)
	assert.Eventually(t, func() bool { return s.handlers.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketMalformedFramesKeepConnection(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	key, wallet := newKey(t)

	conn := s.dial(nil)
	v, ok := s.read(conn).(core.UUIDValidation)
	require.True(t, ok)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0xff, 0xff}))
	s.writeClaim(conn, key, wallet, v.UUID)
	assert.Equal(t, core.Profile{Energies: 100}, s.read(conn))
}

func TestWebSocketAuthTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.AuthTimeout = 100 * time.Millisecond
	s := newTestServer(t, opts)

	conn := s.dial(nil)
	_, ok := s.read(conn).(core.UUIDValidation)
	require.True(t, ok)

	expectClosed(t, conn)
}

func TestWebSocketAuthTimeoutSparesAuthenticated(t *testing.T) {
	opts := DefaultOptions()
	opts.AuthTimeout = 200 * time.Millisecond
	s := newTestServer(t, opts)
	key, wallet := newKey(t)

	conn := s.dial(nil)
	v := s.read(conn).(core.UUIDValidation)
	s.writeClaim(conn, key, wallet, v.UUID)
	s.read(conn)

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, s.handlers.Connections())
}

func TestWebSocketOriginCheck(t *testing.T) {
	opts := DefaultOptions()
	opts.AllowedOrigins = []string{"https://wallet.example"}
	s := newTestServer(t, opts)
	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := s.dial(http.Header{"Origin": {"https://wallet.example"}})
	_, ok := s.read(conn).(core.UUIDValidation)
	assert.True(t, ok)

	conn = s.dial(nil)
	_, ok = s.read(conn).(core.UUIDValidation)
	assert.True(t, ok)
}

func TestCloseAll(t *testing.T) {
	s := newTestServer(t, DefaultOptions())

	conns := []*websocket.Conn{s.dial(nil), s.dial(nil)}
	for _, conn := range conns {
		s.read(conn)
	}
	require.Equal(t, 2, s.handlers.Connections())

	s.handlers.CloseAll()
	assert.Equal(t, 0, s.handlers.Connections())
	for _, conn := range conns {
		expectClosed(t, conn)
	}

	resp, err := http.Get(s.server.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, DefaultOptions())

	resp, err := http.Get(s.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])

	metricsResp, err := http.Get(s.server.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestPeerCloseCancelsLedgerQuery(t *testing.T) {
	usage := newStallingLedger()
	s := newTestServerWithLedger(t, DefaultOptions(), usage)
	key, wallet := newKey(t)

	conn := s.dial(nil)
	v, ok := s.read(conn).(core.UUIDValidation)
	require.True(t, ok)

	s.writeClaim(conn, key, wallet, v.UUID)
	waitFor(t, usage.started, 5*time.Second, "ledger query did not start")

	require.NoError(t, conn.Close())
	waitFor(t, usage.canceled, 3*time.Second, "ledger query still running after the client closed")
	assert.Eventually(t, func() bool { return s.handlers.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestAuthTimeoutCancelsLedgerQuery(t *testing.T) {
	usage := newStallingLedger()
	opts := DefaultOptions()
	opts.AuthTimeout = 300 * time.Millisecond
	s := newTestServerWithLedger(t, opts, usage)
	key, wallet := newKey(t)

	conn := s.dial(nil)
	v, ok := s.read(conn).(core.UUIDValidation)
	require.True(t, ok)

	s.writeClaim(conn, key, wallet, v.UUID)
	waitFor(t, usage.started, 5*time.Second, "ledger query did not start")

	waitFor(t, usage.canceled, 3*time.Second, "ledger query still running after the auth timeout")
	expectClosed(t, conn)
}

func TestCloseAllCancelsLedgerQuery(t *testing.T) {
	usage := newStallingLedger()
	s := newTestServerWithLedger(t, DefaultOptions(), usage)
	key, wallet := newKey(t)

	conn := s.dial(nil)
	v, ok := s.read(conn).(core.UUIDValidation)
	require.True(t, ok)

	s.writeClaim(conn, key, wallet, v.UUID)
	waitFor(t, usage.started, 5*time.Second, "ledger query did not start")

	s.handlers.CloseAll()
	waitFor(t, usage.canceled, time.Second, "ledger query still running after shutdown")
	assert.Equal(t, 0, s.handlers.Connections())
}

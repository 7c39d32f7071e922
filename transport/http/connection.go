package http

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/internal/metrics"
	"github.com/layer-3/energygate/ports"
	"github.com/layer-3/energygate/service"
)

const (
	sendBufferSize    = 16
	inboundBufferSize = 16
)

var errSendBufferFull = errors.New("send buffer full")

// connIDCounter assigns process-unique connection ids.
var connIDCounter atomic.Uint64

// wsConn is a middleman between the websocket connection and the protocol.
// Reads happen on readPump, protocol work on dispatch and writes on writePump;
// Send and Close are safe from any goroutine. ctx lives until Close.
type wsConn struct {
	id     string
	conn   *websocket.Conn
	opts   Options
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ ports.Conn = (*wsConn)(nil)

func newWSConn(parent context.Context, conn *websocket.Conn, opts Options, logger zerolog.Logger) *wsConn {
	id := "conn-" + strconv.FormatUint(connIDCounter.Add(1), 10)
	ctx, cancel := context.WithCancel(parent)
	return &wsConn{
		id:     id,
		conn:   conn,
		opts:   opts,
		logger: logger.With().Str("session_id", id).Logger(),
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Send queues one binary frame.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return core.ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return core.ErrConnectionClosed
	default:
		return errSendBufferFull
	}
}

// Close cancels in-flight protocol work and asks the write pump to flush
// queued frames and close the socket.
func (c *wsConn) Close() error {
	err := core.ErrConnectionClosed
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
		err = nil
	})
	return err
}

// run starts the pumps and blocks until the connection is finished.
func (c *wsConn) run(protocol *service.Protocol) {
	var timer *time.Timer
	if c.opts.AuthTimeout > 0 {
		timer = time.AfterFunc(c.opts.AuthTimeout, func() {
			if protocol.Authenticated() {
				return
			}
			metrics.AuthTimeouts.Inc()
			c.logger.Info().Dur("timeout", c.opts.AuthTimeout).Msg("closing unauthenticated connection")
			_ = c.Close()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	inbound := make(chan []byte, inboundBufferSize)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		c.dispatch(protocol, inbound)
	}()

	c.readPump(inbound)
	close(inbound)

	if timer != nil {
		timer.Stop()
	}
	_ = c.Close()
	<-dispatchDone
	<-writerDone
	protocol.Close()
}

// readPump forwards inbound frames in receipt order. It keeps reading while
// the protocol is busy, so a peer that goes away closes the connection and
// cancels its context.
func (c *wsConn) readPump(inbound chan<- []byte) {
	c.conn.SetReadLimit(c.opts.ReadLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		c.logger.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Msg("unexpected websocket close")
			}
			return
		}

		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}

		select {
		case inbound <- data:
		case <-c.done:
			return
		}
	}
}

// dispatch hands frames to the protocol one at a time until inbound is
// closed. Frames arriving after Close are dropped.
func (c *wsConn) dispatch(protocol *service.Protocol, inbound <-chan []byte) {
	for data := range inbound {
		select {
		case <-c.done:
			continue
		default:
		}

		if err := protocol.HandleMessage(c.ctx, data); err != nil {
			if !errors.Is(err, core.ErrRejected) && !errors.Is(err, core.ErrConnectionClosed) {
				c.logger.Debug().Err(err).Msg("connection closed by protocol")
			}
			_ = c.Close()
		}
	}
}

// writePump drains the send queue to the socket and keeps the peer alive
// with pings. Frames queued before Close are still written.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.BinaryMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("failed to write message")
				_ = c.Close()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}

		case <-c.done:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.BinaryMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/layer-3/energygate/adapters/verifier"
	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/internal/metrics"
	"github.com/layer-3/energygate/ports"
)

// Protocol drives the state machine of one connection. HandleMessage calls
// are serialized, so at most one ClientAuth is in flight per connection.
type Protocol struct {
	svc    *GatewayService
	conn   ports.Conn
	logger zerolog.Logger

	mu      sync.Mutex
	session *core.Session

	// authed is set once Profile has been queued; readable without mu.
	authed atomic.Bool
}

// Session returns a snapshot of the session state.
func (p *Protocol) Session() core.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.session
}

// Authenticated reports whether the handshake has completed, i.e. the wallet
// was verified and Profile was sent. It does not wait for an auth attempt
// that is in progress.
func (p *Protocol) Authenticated() bool {
	return p.authed.Load()
}

// Close records a transport-level disconnect. It is safe to call repeatedly.
func (p *Protocol) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session.Disconnect()
}

// HandleMessage processes one inbound frame.
//
// Malformed frames and messages with no meaning in the current state are
// discarded and nil is returned. core.ErrRejected means authentication failed
// and the connection has been closed; any other error means the connection was
// closed because it can no longer be used.
func (p *Protocol) HandleMessage(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session.State.Terminal() {
		return core.ErrConnectionClosed
	}

	kind, err := p.svc.codec.DecodeHeader(data)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(metrics.StageHeader).Inc()
		p.logger.Debug().Err(err).Int("bytes", len(data)).Msg("discarding malformed message")
		return nil
	}

	if kind != core.KindClientAuth {
		p.logger.Debug().Stringer("kind", kind).Str("state", p.session.State.String()).Msg("ignoring message")
		return nil
	}

	if p.session.Authenticated() {
		p.logger.Debug().Msg("ignoring ClientAuth on authenticated session")
		return nil
	}

	msg, err := p.svc.codec.Decode(data)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(metrics.StagePayload).Inc()
		p.logger.Debug().Err(err).Msg("discarding malformed ClientAuth")
		return nil
	}

	claim, ok := msg.(core.ClientAuth)
	if !ok {
		return nil
	}

	return p.authenticate(ctx, claim)
}

func (p *Protocol) authenticate(ctx context.Context, claim core.ClientAuth) error {
	logger := p.logger.With().Str("wallet", claim.Wallet).Logger()

	if p.svc.opts.RequireChallengeBinding && claim.UUID != p.session.Challenge {
		metrics.AuthAttempts.WithLabelValues(metrics.AuthStale).Inc()
		logger.Info().Msg("rejecting claim for a different challenge")
		return p.reject()
	}

	signer, err := p.recoverSigner(claim)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(metrics.AuthInvalid).Inc()
		logger.Info().Err(err).Msg("rejecting unverifiable signature")
		return p.reject()
	}

	if !strings.EqualFold(signer, claim.Wallet) {
		metrics.AuthAttempts.WithLabelValues(metrics.AuthRejected).Inc()
		logger.Info().Str("signer", signer).Msg("rejecting signature from another wallet")
		return p.reject()
	}

	now := p.svc.opts.Now()
	if err := p.session.Authenticate(claim.Wallet, now); err != nil {
		return err
	}
	metrics.AuthAttempts.WithLabelValues(metrics.AuthAccepted).Inc()
	logger.Info().Msg("client connected")

	remaining, ok := p.svc.remainingEnergy(ctx, logger, p.session.Wallet)
	if !ok {
		p.closeConn()
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("usage unavailable: %w", core.ErrQuotaQuery)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.send(core.Profile{Energies: int32(remaining)}); err != nil {
		p.closeConn()
		return err
	}
	p.authed.Store(true)

	p.svc.publishAuthenticated(ctx, logger, ports.AuthenticatedEvent{
		SessionID: p.session.ID,
		Wallet:    p.session.Wallet,
		Energies:  remaining,
		At:        now,
	})
	return nil
}

func (p *Protocol) recoverSigner(claim core.ClientAuth) (string, error) {
	sig, err := verifier.DecodeSignature(claim.Sign)
	if err != nil {
		return "", err
	}

	start := time.Now()
	signer, err := p.svc.verifier.Recover(claim.SignedMessage(), sig)
	metrics.SignatureVerifyDuration.Observe(time.Since(start).Seconds())
	return signer, err
}

// reject closes the connection without a response.
func (p *Protocol) reject() error {
	if err := p.session.Reject(); err != nil {
		return err
	}
	p.closeConn()
	return core.ErrRejected
}

func (p *Protocol) send(msg core.Message) error {
	data, err := p.svc.codec.Encode(msg)
	if err != nil {
		metrics.SendErrors.Inc()
		p.logger.Error().Err(err).Stringer("kind", msg.Kind()).Msg("failed to encode message")
		return err
	}

	if err := p.conn.Send(data); err != nil {
		metrics.SendErrors.Inc()
		if !errors.Is(err, core.ErrConnectionClosed) {
			p.logger.Warn().Err(err).Stringer("kind", msg.Kind()).Msg("failed to send message")
		}
		return err
	}
	return nil
}

func (p *Protocol) closeConn() {
	if err := p.conn.Close(); err != nil && !errors.Is(err, core.ErrConnectionClosed) {
		p.logger.Debug().Err(err).Msg("close failed")
	}
}

func countUsage(ctx context.Context, ledger ports.Ledger, wallet, day string) (int, error) {
	start := time.Now()
	used, err := ledger.CountUsage(ctx, wallet, day)
	metrics.LedgerQueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QuotaQueryErrors.Inc()
		if !errors.Is(err, core.ErrQuotaQuery) {
			err = fmt.Errorf("%w: %w", core.ErrQuotaQuery, err)
		}
		return 0, err
	}
	return used, nil
}

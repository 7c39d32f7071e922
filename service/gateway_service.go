package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/layer-3/energygate/core"
	"github.com/layer-3/energygate/ports"
)

// Options are the immutable protocol settings shared by every connection.
type Options struct {
	// MaxEnergy is the daily allowance reported to clients.
	MaxEnergy int

	// RequireChallengeBinding rejects claims whose uuid differs from the
	// challenge issued on the same connection.
	RequireChallengeBinding bool

	// QuotaFailOpen treats an unavailable ledger as zero usage. When false the
	// connection is closed instead.
	QuotaFailOpen bool

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns the production protocol settings.
func DefaultOptions() Options {
	return Options{
		MaxEnergy:               core.MaxEnergy,
		RequireChallengeBinding: true,
		QuotaFailOpen:           true,
	}
}

// GatewayService handles the connection protocol business logic
type GatewayService struct {
	codec    ports.Codec
	issuer   ports.ChallengeIssuer
	verifier ports.Verifier
	ledger   ports.Ledger
	eventPub ports.EventPublisher
	logger   zerolog.Logger
	opts     Options
}

// NewGatewayService creates a new gateway service
func NewGatewayService(
	codec ports.Codec,
	issuer ports.ChallengeIssuer,
	verifier ports.Verifier,
	ledger ports.Ledger,
	eventPub ports.EventPublisher,
	logger zerolog.Logger,
	opts Options,
) *GatewayService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &GatewayService{
		codec:    codec,
		issuer:   issuer,
		verifier: verifier,
		ledger:   ledger,
		eventPub: eventPub,
		logger:   logger,
		opts:     opts,
	}
}

// Open binds a new connection to a protocol instance: it issues the challenge
// and sends UUIDValidation before returning. On error the connection has
// already been closed.
func (s *GatewayService) Open(ctx context.Context, conn ports.Conn) (*Protocol, error) {
	p := &Protocol{
		svc:     s,
		conn:    conn,
		session: core.NewSession(conn.ID(), s.opts.Now()),
		logger: s.logger.With().
			Str("session_id", conn.ID()).
			Str("remote_addr", conn.RemoteAddr()).
			Logger(),
	}

	token, err := s.issuer.Issue()
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to issue challenge")
		p.closeConn()
		return nil, fmt.Errorf("failed to issue challenge: %w", err)
	}

	if err := p.session.IssueChallenge(token); err != nil {
		p.closeConn()
		return nil, err
	}

	if err := p.send(core.UUIDValidation{UUID: token}); err != nil {
		p.closeConn()
		return nil, err
	}

	p.logger.Debug().Msg("challenge issued")
	return p, nil
}

// remainingEnergy counts today's usage for wallet and converts it to the
// remaining allowance. ok is false when the ledger failed and fail-open is off.
func (s *GatewayService) remainingEnergy(ctx context.Context, logger zerolog.Logger, wallet string) (remaining int, ok bool) {
	day := core.Day(s.opts.Now())

	used, err := countUsage(ctx, s.ledger, wallet, day)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false
		}
		logger.Warn().Err(err).Str("day", day).Bool("fail_open", s.opts.QuotaFailOpen).Msg("usage query failed")
		if !s.opts.QuotaFailOpen {
			return 0, false
		}
		used = 0
	}

	return core.RemainingEnergy(s.opts.MaxEnergy, used), true
}

func (s *GatewayService) publishAuthenticated(ctx context.Context, logger zerolog.Logger, event ports.AuthenticatedEvent) {
	if s.eventPub == nil {
		return
	}
	if err := s.eventPub.PublishAuthenticated(ctx, event); err != nil {
		// The session is already authenticated; the event feed is best effort.
		logger.Warn().Err(err).Msg("failed to publish authenticated event")
	}
}

// Package supervisor runs long-lived gateway services under suture.
package supervisor

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// NewTree creates the root supervisor. Supervisor events (restarts, backoff,
// stop timeouts) are logged through logger.
func NewTree(logger zerolog.Logger, shutdownTimeout time.Duration) *suture.Supervisor {
	return suture.New("energygate", suture.Spec{
		EventHook: func(e suture.Event) {
			logger.Warn().Fields(e.Map()).Msg(e.String())
		},
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
}

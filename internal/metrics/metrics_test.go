package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAuthAttemptsByResult(t *testing.T) {
	before := testutil.ToFloat64(AuthAttempts.WithLabelValues(AuthAccepted))
	AuthAttempts.WithLabelValues(AuthAccepted).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AuthAttempts.WithLabelValues(AuthAccepted)))
}

func TestConnectionsGauge(t *testing.T) {
	before := testutil.ToFloat64(ConnectionsActive)
	ConnectionsActive.Inc()
	ConnectionsActive.Dec()
	assert.Equal(t, before, testutil.ToFloat64(ConnectionsActive))
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("chat")
		IncTurn("greeting")
		ObserveTurn(15 * time.Millisecond)
		IncExtraction("pattern")
		IncOracleFailure("timeout")
		IncBotUpdate("command")
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(dispatches.WithLabelValues("create_booking", "ok"))
	IncDispatch("create_booking", "ok")
	IncDispatch("create_booking", "ok")
	assert.Equal(t, before+2, testutil.ToFloat64(dispatches.WithLabelValues("create_booking", "ok")))

	SetSessions(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(sessions))
}

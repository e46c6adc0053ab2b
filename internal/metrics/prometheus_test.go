package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	m := New()

	m.RecordSessionStart()
	m.RecordSessionStart()
	m.RecordSessionEnd("stop", 30*time.Second)
	m.RecordCommit()
	m.RecordBargeIn()
	m.RecordReconnect(true)
	m.RecordReconnect(false)
	m.RecordFrame(DirectionInbound)
	m.RecordFrame(DirectionInbound)
	m.RecordDroppedFrame("muted")
	m.RecordProtocolError("carrier")
	m.RecordModelError("invalid_value")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsEnded.WithLabelValues("stop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Frames.WithLabelValues(DirectionInbound)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSessionStart()
		m.RecordSessionEnd("stop", time.Second)
		m.RecordCommit()
		m.RecordBargeIn()
		m.RecordReconnect(true)
		m.RecordFrame(DirectionOutbound)
		m.RecordDroppedFrame("muted")
		m.RecordProtocolError("model")
		m.RecordModelError("x")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordBargeIn()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "bridge_barge_ins_total 1")
}

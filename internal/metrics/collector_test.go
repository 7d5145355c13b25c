package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/execution"
)

func TestObserveNode(t *testing.T) {
	c := NewCollector("", zap.NewNop())

	c.ObserveNode("http", 300*time.Millisecond, nil)
	c.ObserveNode("http", 10*time.Millisecond, nil)
	c.ObserveNode("http", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.nodeExecutions.WithLabelValues("http", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodeExecutions.WithLabelValues("http", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.nodeDuration))
}

func TestObserveStatus(t *testing.T) {
	c := NewCollector("", nil)

	c.ObserveStatus(execution.StatusRunning)
	c.ObserveStatus(execution.StatusRunning)
	c.ObserveStatus(execution.StatusCompleted)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.statusTransitions.WithLabelValues("running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.statusTransitions.WithLabelValues("completed")))
}

func TestRecordLayoutAndHistory(t *testing.T) {
	c := NewCollector("", nil)

	c.RecordLayout(12, 2*time.Millisecond)
	c.RecordHistory("undo")
	c.RecordHistory("undo")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.layouts))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.historyOps.WithLabelValues("undo")))
}

func TestDependencyUp(t *testing.T) {
	c := NewCollector("", nil)

	c.SetDependencyUp("postgres", true)
	c.SetDependencyUp("mqtt", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.dependencyUp.WithLabelValues("postgres")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.dependencyUp.WithLabelValues("mqtt")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("", nil)
	b := NewCollector("", nil)

	a.RecordHistory("commit")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.historyOps.WithLabelValues("commit")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.historyOps.WithLabelValues("commit")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("", nil)
	c.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	c.GaugeFunc("", "ws_clients", "Number of websocket clients", func() float64 { return 3 })

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `flowengine_http_requests_total{method="GET",path="/health",status="200"} 1`))
	assert.Contains(t, text, "flowengine_ws_clients 3")
	assert.Contains(t, text, "flowengine_build_info")
}

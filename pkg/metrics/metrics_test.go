package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()
	c.CommandExecuted("register")
	c.CommandExecuted("register")
	c.UnknownCommand()
	c.EngineEvent("incoming_call")
	c.AuthRequested(2)
	c.SetOperations(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.commandsTotal.WithLabelValues("register")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.unknownCommands))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("incoming_call")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.authRequests))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.operations))
}

func TestCollectorState(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, "uninitialized", c.State())

	c.SetState("running")
	assert.Equal(t, "running", c.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionState.WithLabelValues("running")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.sessionState.WithLabelValues("starting")))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.CommandExecuted("x")
	c.UnknownCommand()
	c.SetState("running")
	assert.Equal(t, "", c.State())
	assert.Nil(t, c.Registry())
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.CommandExecuted("invite")
	c.SetState("running")
	h := NewHandler(c)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sofsip_commands_total{operation="invite"} 1`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running\n", rec.Body.String())

	c.SetState("terminated")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerLifecycle(t *testing.T) {
	c := NewCollector()
	s, err := Start("127.0.0.1:0", c, nil)
	require.NoError(t, err)

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.HasPrefix(string(body), "uninitialized"))

	require.NoError(t, s.Shutdown(context.Background()))
}

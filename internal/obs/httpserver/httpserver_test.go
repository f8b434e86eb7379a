package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"ssw-trace-core/internal/graph"
)

type fakeInspector struct{ snap []graph.ComponentSnapshot }

func (f fakeInspector) Snapshot() []graph.ComponentSnapshot { return f.snap }

func TestDebugGraphReportsComponents(t *testing.T) {
	r := New(fakeInspector{snap: []graph.ComponentSnapshot{{Name: "src", Class: "ctf.fs", Kind: graph.KindSource}}})
	req := httptest.NewRequest(http.MethodGet, "/debug/graph", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "\"src\"")
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	r := New(nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

// Package httpserver exposes the ambient debug/metrics HTTP surface: a
// promhttp /metrics endpoint and a read-only /debug/graph introspection
// endpoint. This is not the CLI front end (which stays out of scope);
// it is the same kind of ops surface the retrieval pack's own service
// exposes for its metrics port.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ssw-trace-core/internal/graph"
)

// GraphInspector is the minimal view of a graph the /debug/graph
// endpoint needs; *graph.Graph satisfies it directly via Snapshot.
type GraphInspector interface {
	Snapshot() []graph.ComponentSnapshot
}

// New builds the debug/metrics mux. inspector may be nil if the graph
// isn't built yet when the server starts; /debug/graph then reports an
// empty component list rather than failing.
func New(inspector GraphInspector) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/debug/graph", func(w http.ResponseWriter, req *http.Request) {
		var components []graph.ComponentSnapshot
		if inspector != nil {
			components = inspector.Snapshot()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(components)
	}).Methods(http.MethodGet)
	return r
}

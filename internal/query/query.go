// Package query implements the side-channel synchronous query executor
// (spec §4.L): a request/response RPC into a component class, retried on
// AGAIN with the same back-off the graph runtime uses.
package query

import (
	"ssw-trace-core/internal/bretry"
	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/graph"
	"ssw-trace-core/internal/metrics"
	"ssw-trace-core/internal/value"
)

// ComponentClass answers a query for one named object. It returns a
// bterr Again-kind error to ask for a retry, a NotFound-kind error for
// an unrecognized object name, or any other error for a hard failure.
type ComponentClass interface {
	Query(objectName string, params *value.Value) (*value.Value, error)
}

// Executor owns the interrupter and retry policy for every query it
// issues. Standard object names: "babeltrace.support-info",
// "babeltrace.trace-infos", "sessions", "metadata-info".
type Executor struct {
	interrupter *graph.Interrupter
	backoff     bretry.Backoff
	logLevel    string
}

// New builds an Executor sharing interrupter with the graph it queries
// component classes on behalf of.
func New(interrupter *graph.Interrupter, backoff bretry.Backoff) *Executor {
	return &Executor{interrupter: interrupter, backoff: backoff}
}

func (e *Executor) SetLogLevel(level string) { e.logLevel = level }
func (e *Executor) LogLevel() string         { return e.logLevel }

// Query issues objectName against class, retrying on Again until either
// a result arrives, a non-Again error arrives, or the interrupter is set.
func (e *Executor) Query(class ComponentClass, objectName string, params *value.Value) (*value.Value, error) {
	for {
		v, err := class.Query(objectName, params)
		if err == nil {
			return v, nil
		}
		if !bterr.IsAgain(err) {
			return nil, err
		}
		metrics.QueryRetriesTotal.WithLabelValues(objectName).Inc()
		if e.interrupter != nil && e.interrupter.IsSet() {
			return nil, bterr.Interrupted(bterr.ActorComponentClass, "query", "query")
		}
		if !e.backoff.Sleep(e.interruptedFunc()) {
			return nil, bterr.Interrupted(bterr.ActorComponentClass, "query", "query")
		}
	}
}

func (e *Executor) interruptedFunc() func() bool {
	if e.interrupter == nil {
		return func() bool { return false }
	}
	return e.interrupter.IsSet
}

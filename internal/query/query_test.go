package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ssw-trace-core/internal/bretry"
	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/graph"
	"ssw-trace-core/internal/value"
)

type flakyClass struct {
	againCount int
	calls      int
}

func (c *flakyClass) Query(objectName string, params *value.Value) (*value.Value, error) {
	c.calls++
	if c.calls <= c.againCount {
		return nil, bterr.Again(bterr.ActorComponentClass, "test", "query")
	}
	return value.String("ok"), nil
}

func TestQueryRetriesOnAgain(t *testing.T) {
	interrupter := &graph.Interrupter{}
	ex := New(interrupter, bretry.NewBackoff(time.Millisecond))
	class := &flakyClass{againCount: 2}

	v, err := ex.Query(class, "babeltrace.support-info", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", v.AsString())
	require.Equal(t, 3, class.calls)
}

type unknownObjectClass struct{}

func (unknownObjectClass) Query(objectName string, params *value.Value) (*value.Value, error) {
	return nil, bterr.New(bterr.KindNotFound, bterr.ActorComponentClass, "test", "query", "unknown object")
}

func TestQueryPropagatesNonAgainError(t *testing.T) {
	ex := New(&graph.Interrupter{}, bretry.NewBackoff(time.Millisecond))
	_, err := ex.Query(unknownObjectClass{}, "nonexistent", nil)
	require.Error(t, err)
	k, ok := bterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, bterr.KindNotFound, k)
}

func TestQueryStopsWhenInterrupted(t *testing.T) {
	interrupter := &graph.Interrupter{}
	interrupter.Set()
	ex := New(interrupter, bretry.NewBackoff(time.Millisecond))
	class := &flakyClass{againCount: 100}

	_, err := ex.Query(class, "sessions", nil)
	require.Error(t, err)
	require.True(t, bterr.IsInterrupted(err))
}

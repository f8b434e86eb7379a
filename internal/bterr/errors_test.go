package bterr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesDeepestCause(t *testing.T) {
	root := New(KindDecodeMalformed, ActorMessageIterator, "ctfiter", "decode_header", "bad magic")
	mid := Wrap(root, KindProtocol, ActorComponent, "filemedium", "request_bytes", "header read failed")
	top := Wrap(mid, KindInvalidState, ActorComponent, "streamiter", "pull", "stream iterator failed")

	var e *Error
	require.True(t, errors.As(top, &e))
	require.Equal(t, KindInvalidState, e.Kind)

	chain := Chain(top)
	require.Len(t, chain, 3)
	require.Contains(t, chain[2], "bad magic")
}

func TestAgainAndInterruptedNeverChain(t *testing.T) {
	again := Again(ActorComponent, "livemedium", "recv")
	wrapped := Wrap(again, KindProtocol, ActorComponent, "livesession", "poll", "should not wrap")
	require.Same(t, again, wrapped)
	require.True(t, IsAgain(wrapped))

	interrupted := Interrupted(ActorComponentClass, "graph", "run")
	wrapped2 := Wrap(interrupted, KindIO, ActorComponent, "graph", "run", "should not wrap")
	require.Same(t, interrupted, wrapped2)
	require.True(t, IsInterrupted(wrapped2))
}

func TestKindOfUnknownError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	require.False(t, ok)
}

package trimmer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ssw-trace-core/internal/ctfiter"
	"ssw-trace-core/internal/medium"
)

type sliceSource struct {
	msgs []*ctfiter.Message
	pos  int
}

func (s *sliceSource) Next() (*ctfiter.Message, medium.Status, error) {
	if s.pos >= len(s.msgs) {
		return nil, medium.StatusEof, nil
	}
	m := s.msgs[s.pos]
	s.pos++
	return m, medium.StatusOk, nil
}

func tsMsg(ns int64) *ctfiter.Message {
	return &ctfiter.Message{Kind: ctfiter.KindEvent, HasTs: true, TsNs: ns}
}

func TestTrimmerClipsToWindow(t *testing.T) {
	src := &sliceSource{msgs: []*ctfiter.Message{tsMsg(5), tsMsg(10), tsMsg(20), tsMsg(30), tsMsg(40)}}
	begin, end := int64(10), int64(30)
	tr := New(src, &begin, &end)

	var got []int64
	for {
		m, status, err := tr.Next()
		require.NoError(t, err)
		if status == medium.StatusEof {
			break
		}
		got = append(got, m.TsNs)
	}
	require.Equal(t, []int64{10, 20}, got)
}

func TestTrimmerUnboundedPassesEverything(t *testing.T) {
	src := &sliceSource{msgs: []*ctfiter.Message{tsMsg(1), tsMsg(2)}}
	tr := New(src, nil, nil)

	var got []int64
	for {
		m, status, err := tr.Next()
		require.NoError(t, err)
		if status == medium.StatusEof {
			break
		}
		got = append(got, m.TsNs)
	}
	require.Equal(t, []int64{1, 2}, got)
}

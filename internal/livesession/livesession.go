// Package livesession implements the live session manager (spec §4.M):
// per-connection session/trace bookkeeping over an attached LTTng-live
// viewer client, including the metadata-before-data ordering rule and
// the zero-discovered-sessions policy.
package livesession

import (
	"fmt"

	"ssw-trace-core/internal/bretry"
	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/clockclass"
	"ssw-trace-core/internal/ctfiter"
	"ssw-trace-core/internal/graph"
	"ssw-trace-core/internal/livemedium"
	"ssw-trace-core/internal/medium"
	"ssw-trace-core/internal/streamiter"
)

// MetadataState is a trace's textual-metadata lifecycle.
type MetadataState int

const (
	MetadataNeeded MetadataState = iota
	MetadataNotNeeded
	MetadataClosed
)

// Trace is the per-CTF-trace bookkeeping a live session carries. A
// trace's stream iterators may not be used for decoding while
// MetadataState is Needed: §9's "no data message may be emitted between
// metadata fetch and the next data packet" rule.
type Trace struct {
	ID             uint64
	MetadataState  MetadataState
	MetadataBytes  []byte
	StreamIters    map[uint64]*streamiter.Iterator
	ClockClass     *clockclass.ClockClass
}

// Session is one relay-side live session attached over one Client.
type Session struct {
	ID                uint64
	Hostname          string
	Name              string
	Attached          bool
	Closed            bool
	NewStreamsNeeded  bool
	LazyStreamMsgInit bool
	Traces            map[uint64]*Trace
}

// ZeroSessionsPolicy governs behavior when a discovery round finds no
// sessions on the relay.
type ZeroSessionsPolicy int

const (
	PolicyContinue ZeroSessionsPolicy = iota
	PolicyFail
	PolicyEnd
)

// ErrEnd is returned by Discover when PolicyEnd applies to a
// zero-session discovery round: the caller should treat this as a clean
// end of input, not an error condition.
var ErrEnd = bterr.New(bterr.KindNotFound, bterr.ActorComponent, "livesession", "discover", "no sessions and policy is end")

// Manager owns every session discovered over one Client.
type Manager struct {
	client      *livemedium.Client
	policy      ZeroSessionsPolicy
	backoff     bretry.Backoff
	interrupter *graph.Interrupter

	sessions map[uint64]*Session
}

// NewManager builds a Manager driving client with the given zero-session
// policy and AGAIN/empty-discovery back-off.
func NewManager(client *livemedium.Client, policy ZeroSessionsPolicy, backoff bretry.Backoff, interrupter *graph.Interrupter) *Manager {
	return &Manager{client: client, policy: policy, backoff: backoff, interrupter: interrupter, sessions: make(map[uint64]*Session)}
}

func (m *Manager) Sessions() map[uint64]*Session { return m.sessions }

// Discover lists sessions on the relay, registering any not already
// known. On an empty result it applies the configured zero-sessions
// policy: Continue retries (sleeping the back-off) until a session
// appears or the interrupter is set, Fail returns a NotFound error
// immediately, End returns ErrEnd immediately.
func (m *Manager) Discover() error {
	for {
		sessions, err := m.client.ListSessions()
		if err != nil {
			return err
		}
		if len(sessions) > 0 {
			for _, s := range sessions {
				if _, exists := m.sessions[s.ID]; exists {
					continue
				}
				m.sessions[s.ID] = &Session{ID: s.ID, Hostname: s.Hostname, Name: s.Name, Traces: make(map[uint64]*Trace)}
			}
			return nil
		}

		switch m.policy {
		case PolicyFail:
			return bterr.New(bterr.KindNotFound, bterr.ActorComponent, "livesession", "discover", "no live sessions found on relay")
		case PolicyEnd:
			return ErrEnd
		case PolicyContinue:
			if m.interrupter != nil && m.interrupter.IsSet() {
				return bterr.Interrupted(bterr.ActorComponent, "livesession", "discover")
			}
			if !m.backoff.Sleep(m.interruptedFunc()) {
				return bterr.Interrupted(bterr.ActorComponent, "livesession", "discover")
			}
		default:
			return bterr.New(bterr.KindInvalidArgument, bterr.ActorComponent, "livesession", "discover", "unknown zero-sessions policy")
		}
	}
}

func (m *Manager) interruptedFunc() func() bool {
	if m.interrupter == nil {
		return func() bool { return false }
	}
	return m.interrupter.IsSet
}

// Attach attaches sessionID, classifying every reported viewer stream
// into its owning Trace and marking a trace's metadata as Needed the
// moment its first metadata stream is observed. It does not itself
// decode metadata bytes or build decode-ready stream iterators: those
// require a parsed TSDL trace-class definition, supplied by the caller
// once GetMetadata has been drained (see DESIGN.md).
func (m *Manager) Attach(sessionID uint64) error {
	sess, ok := m.sessions[sessionID]
	if !ok {
		return bterr.New(bterr.KindNotFound, bterr.ActorComponent, "livesession", "attach",
			fmt.Sprintf("unknown session %d", sessionID))
	}
	streams, err := m.client.AttachSession(sessionID)
	if err != nil {
		return err
	}
	sess.Attached = true

	for _, si := range streams {
		tr, ok := sess.Traces[si.CTFStreamClassID]
		if !ok {
			tr = &Trace{ID: si.CTFStreamClassID, MetadataState: MetadataNeeded, StreamIters: make(map[uint64]*streamiter.Iterator)}
			sess.Traces[si.CTFStreamClassID] = tr
		}
		if si.IsMetadata {
			tr.MetadataState = MetadataNeeded
		}
	}
	return nil
}

// DrainMetadata fetches metadata chunks for trace until the relay
// reports no more are pending (zero-length chunk), appending each to the
// trace's buffered metadata and only then marking it NotNeeded. Per
// spec §9 scenario 5, a trace's data streams must not be decoded while
// its MetadataState is Needed.
func (m *Manager) DrainMetadata(tr *Trace, metadataStreamID uint64) error {
	for {
		chunk, err := m.client.GetMetadata(metadataStreamID)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			tr.MetadataState = MetadataNotNeeded
			return nil
		}
		tr.MetadataBytes = append(tr.MetadataBytes, chunk...)
	}
}

// ApplyReplyFlags reacts to FLAG_NEW_METADATA/FLAG_NEW_STREAM observed
// on a GET_NEXT_INDEX or GET_PACKET reply for one of tr's streams.
func (tr *Trace) ApplyReplyFlags(flags livemedium.ReplyFlags) {
	if flags&livemedium.FlagNewMetadata != 0 {
		tr.MetadataState = MetadataNeeded
	}
}

// AdvanceStream pulls the next message off streamID's iterator, refusing
// to decode while tr.MetadataState is Needed: spec §9 scenario 5 forbids
// any data message between a FLAG_NEW_METADATA signal and the next
// packet decoded after DrainMetadata clears it. A caller observing AGAIN
// here should drain metadata (or wait for it to be drained) before
// retrying rather than treat it as ordinary backpressure.
func (tr *Trace) AdvanceStream(streamID uint64) (*ctfiter.Message, medium.Status, error) {
	if tr.MetadataState == MetadataNeeded {
		return nil, medium.StatusAgain, nil
	}
	it, ok := tr.StreamIters[streamID]
	if !ok {
		return nil, medium.StatusError, bterr.New(bterr.KindNotFound, bterr.ActorComponent, "livesession", "advance_stream",
			fmt.Sprintf("unknown stream %d", streamID))
	}
	status, err := it.Advance()
	if status != medium.StatusOk {
		return nil, status, err
	}
	msg := it.CurrentMessage()
	it.ClearCurrent()
	return msg, medium.StatusOk, nil
}

// Detach detaches sessionID and marks it closed.
func (m *Manager) Detach(sessionID uint64) error {
	sess, ok := m.sessions[sessionID]
	if !ok {
		return bterr.New(bterr.KindNotFound, bterr.ActorComponent, "livesession", "detach",
			fmt.Sprintf("unknown session %d", sessionID))
	}
	if err := m.client.DetachSession(sessionID); err != nil {
		return err
	}
	sess.Closed = true
	for _, tr := range sess.Traces {
		tr.MetadataState = MetadataClosed
	}
	return nil
}

package livemedium

import (
	"fmt"

	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/fieldtype"
	"ssw-trace-core/internal/medium"
)

// Medium adapts one viewer stream of a Client into a medium.Medium: each
// RequestBytes call drains a GET_NEXT_INDEX/GET_PACKET pair into an
// internal buffer and serves from it. Seek is unsupported (a viewer
// stream has no addressable byte offset); SwitchPacket is a no-op since
// every GET_PACKET already starts at a packet boundary.
//
// Per spec §4.F/§4.H, GET_NEXT_INDEX reply codes carry state the generic
// Medium interface has no room for (quiescence, hang-up, new-metadata/
// new-stream flags); internal/streamiter reads those back through the
// accessor methods below via a type assertion, the same pattern
// internal/filemedium uses to stay decoupled from the CTF message
// iterator's types.
type Medium struct {
	client         *Client
	viewerStreamID uint64

	pending []byte

	hasHungUp           bool
	hasInactivity       bool
	currentInactivityTs uint64
	flags               ReplyFlags
	resolvedStream      uint64
	haveResolved        bool
}

// NewMedium builds a Medium for one attached viewer stream.
func NewMedium(client *Client, viewerStreamID uint64) *Medium {
	return &Medium{client: client, viewerStreamID: viewerStreamID}
}

// HasStreamHungUp reports whether the relay has marked this stream HUP.
func (m *Medium) HasStreamHungUp() bool { return m.hasHungUp }

// TakeInactivity returns and clears the most recent INDEX_INACTIVE
// timestamp reported for this stream, if any arrived since the last call.
func (m *Medium) TakeInactivity() (uint64, bool) {
	if !m.hasInactivity {
		return 0, false
	}
	m.hasInactivity = false
	return m.currentInactivityTs, true
}

// TakeFlags returns and clears the OR of every FLAG_NEW_METADATA/
// FLAG_NEW_STREAM flag observed on a reply since the last call.
func (m *Medium) TakeFlags() ReplyFlags {
	f := m.flags
	m.flags = 0
	return f
}

func (m *Medium) RequestBytes(max int) ([]byte, medium.Status, error) {
	if len(m.pending) == 0 {
		status, err := m.fetchNextPacket()
		if err != nil || status != medium.StatusOk {
			return nil, status, err
		}
	}
	if len(m.pending) == 0 {
		return nil, medium.StatusAgain, nil
	}
	n := max
	if n > len(m.pending) {
		n = len(m.pending)
	}
	buf := m.pending[:n]
	m.pending = m.pending[n:]
	return buf, medium.StatusOk, nil
}

func (m *Medium) fetchNextPacket() (medium.Status, error) {
	reply, err := m.client.GetNextIndex(m.viewerStreamID)
	if err != nil {
		return medium.StatusError, err
	}
	m.flags |= reply.Flags

	switch reply.Code {
	case ReplyIndexOk:
		buf, flags, err := m.client.GetPacket(m.viewerStreamID, uint32(reply.PacketSizeBits/8))
		if err != nil {
			return medium.StatusError, err
		}
		m.flags |= flags
		m.pending = buf
		return medium.StatusOk, nil
	case ReplyIndexRetry:
		return medium.StatusAgain, nil
	case ReplyIndexInactive:
		m.hasInactivity = true
		m.currentInactivityTs = reply.CurrentInactivityTs
		return medium.StatusAgain, nil
	case ReplyIndexHup:
		m.hasHungUp = true
		return medium.StatusEof, nil
	case ReplyIndexErr:
		return medium.StatusError, bterr.New(bterr.KindProtocol, bterr.ActorComponent, "livemedium", "fetch_next_packet",
			"relay returned INDEX_ERR")
	default:
		return medium.StatusError, bterr.New(bterr.KindProtocol, bterr.ActorComponent, "livemedium", "fetch_next_packet",
			fmt.Sprintf("unknown reply code %d", reply.Code))
	}
}

// Seek is unsupported: a live viewer stream has no addressable offset.
func (m *Medium) Seek(uint64) (medium.Status, error) {
	return medium.StatusError, bterr.New(bterr.KindUnsupported, bterr.ActorComponent, "livemedium", "seek",
		"a live viewer stream cannot seek")
}

// SwitchPacket is a no-op: GET_PACKET always starts at a packet boundary.
func (m *Medium) SwitchPacket() (medium.Status, error) { return medium.StatusOk, nil }

// BorrowStream resolves this medium's single stream-class association,
// rejecting a second distinct one exactly like internal/filemedium does.
func (m *Medium) BorrowStream(_ *fieldtype.FieldType, streamID uint64) (medium.StreamHandle, error) {
	if m.haveResolved && m.resolvedStream != streamID {
		return medium.StreamHandle{}, bterr.New(bterr.KindProtocol, bterr.ActorComponent, "livemedium", "borrow_stream",
			"a second distinct stream-class association was observed on one medium")
	}
	m.resolvedStream = streamID
	m.haveResolved = true
	return medium.StreamHandle{StreamID: streamID}, nil
}

package livemedium

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"

	"ssw-trace-core/internal/bterr"
)

// SessionURL is a parsed `net[4]://HOST[:PORT]/host/TARGET/SESSION`
// live session address. Default port 5344.
type SessionURL struct {
	Host   string
	Port   uint16
	Target string
	Name   string
}

const defaultPort = 5344

// Client is a connected LTTng-live viewer protocol session.
type Client struct {
	conn        *Conn
	interrupted int32
	PeerMajor   uint32
	PeerMinor   uint32
}

// Dial connects to the relay at addr and performs version negotiation:
// advertise (ProtocolMajor, ProtocolMinor); abort on a major mismatch;
// a peer minor above the local one is clamped down to the local minor.
func Dial(addr string) (*Client, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorComponent, "livemedium", "dial", addr)
	}
	c := &Client{}
	c.conn = NewConn(nc, &c.interrupted)

	if err := c.connect(); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// Interrupt sets this client's shared interrupter flag.
func (c *Client) Interrupt() { atomic.StoreInt32(&c.interrupted, 1) }

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) connect() error {
	body := make([]byte, 12)
	binary.BigEndian.PutUint32(body[0:4], ProtocolMajor)
	binary.BigEndian.PutUint32(body[4:8], ProtocolMinor)
	binary.BigEndian.PutUint32(body[8:12], 0)

	if err := c.conn.SendCommand(CmdConnect, 1, body); err != nil {
		return err
	}
	reply := make([]byte, 12)
	if err := c.conn.RecvExact(reply); err != nil {
		return err
	}
	peerMajor := binary.BigEndian.Uint32(reply[0:4])
	peerMinor := binary.BigEndian.Uint32(reply[4:8])
	if peerMajor != ProtocolMajor {
		return bterr.New(bterr.KindProtocol, bterr.ActorComponent, "livemedium", "connect",
			fmt.Sprintf("viewer protocol major mismatch: local %d, peer %d", ProtocolMajor, peerMajor))
	}
	c.PeerMajor = peerMajor
	if peerMinor > ProtocolMinor {
		peerMinor = ProtocolMinor
	}
	c.PeerMinor = peerMinor
	return nil
}

// Session describes one live session as enumerated by LIST_SESSIONS.
type Session struct {
	ID       uint64
	Hostname string
	Name     string
}

// ListSessions issues LIST_SESSIONS and returns every session the relay
// currently knows about.
func (c *Client) ListSessions() ([]Session, error) {
	if err := c.conn.SendCommand(CmdListSessions, 1, nil); err != nil {
		return nil, err
	}
	countBuf := make([]byte, 4)
	if err := c.conn.RecvExact(countBuf); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(countBuf)

	sessions := make([]Session, 0, count)
	for i := uint32(0); i < count; i++ {
		rec := make([]byte, 8+256+256)
		if err := c.conn.RecvExact(rec); err != nil {
			return nil, err
		}
		sessions = append(sessions, Session{
			ID:       binary.BigEndian.Uint64(rec[0:8]),
			Hostname: decodeCString(rec[8:264]),
			Name:     decodeCString(rec[264:520]),
		})
	}
	return sessions, nil
}

func decodeCString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// CreateSession issues CREATE_SESSION for url and returns the new
// session id.
func (c *Client) CreateSession(url SessionURL) (uint64, error) {
	port := url.Port
	if port == 0 {
		port = defaultPort
	}
	body := make([]byte, 2+len(url.Host)+2+len(url.Target)+2+len(url.Name)+2)
	writeLenPrefixedString(body, 0, url.Host)
	off := 2 + len(url.Host)
	binary.BigEndian.PutUint16(body[off:off+2], port)
	off += 2
	off += writeLenPrefixedString(body[off:], 0, url.Target)
	writeLenPrefixedString(body[off:], 0, url.Name)

	if err := c.conn.SendCommand(CmdCreateSession, 1, body); err != nil {
		return 0, err
	}
	reply := make([]byte, 8)
	if err := c.conn.RecvExact(reply); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(reply), nil
}

func writeLenPrefixedString(buf []byte, offset int, s string) int {
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(s)))
	copy(buf[offset+2:], s)
	return 2 + len(s)
}

// StreamInfo identifies one viewer stream attached under a session.
type StreamInfo struct {
	ViewerStreamID  uint64
	CTFStreamClassID uint64
	IsMetadata      bool
}

// AttachSession issues ATTACH_SESSION with seek mode LAST, returning
// the set of streams the relay reports for that session.
func (c *Client) AttachSession(sessionID uint64) ([]StreamInfo, error) {
	body := make([]byte, 12)
	binary.BigEndian.PutUint64(body[0:8], sessionID)
	binary.BigEndian.PutUint32(body[8:12], 1) // seek = LAST

	if err := c.conn.SendCommand(CmdAttachSession, 1, body); err != nil {
		return nil, err
	}
	hdr := make([]byte, 8)
	if err := c.conn.RecvExact(hdr); err != nil {
		return nil, err
	}
	status := binary.BigEndian.Uint32(hdr[0:4])
	count := binary.BigEndian.Uint32(hdr[4:8])
	if status != 0 {
		return nil, bterr.New(bterr.KindProtocol, bterr.ActorComponent, "livemedium", "attach_session",
			fmt.Sprintf("relay rejected attach with status %d", status))
	}

	streams := make([]StreamInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		rec := make([]byte, 24)
		if err := c.conn.RecvExact(rec); err != nil {
			return nil, err
		}
		streams = append(streams, StreamInfo{
			ViewerStreamID:   binary.BigEndian.Uint64(rec[0:8]),
			CTFStreamClassID: binary.BigEndian.Uint64(rec[8:16]),
			IsMetadata:       binary.BigEndian.Uint64(rec[16:24]) != 0,
		})
	}
	return streams, nil
}

// DetachSession issues DETACH_SESSION.
func (c *Client) DetachSession(sessionID uint64) error {
	body := make([]byte, 8)
	binary.BigEndian.PutUint64(body, sessionID)
	if err := c.conn.SendCommand(CmdDetachSession, 1, body); err != nil {
		return err
	}
	ack := make([]byte, 4)
	return c.conn.RecvExact(ack)
}

// IndexReply is the decoded response to GET_NEXT_INDEX.
type IndexReply struct {
	Code               ReplyCode
	Flags              ReplyFlags
	PacketSizeBits     uint64
	ContentSizeBits    uint64
	TsBeginCycles      uint64
	TsEndCycles        uint64
	EventsDiscarded    uint64
	CurrentInactivityTs uint64
}

// GetNextIndex fetches the next packet index entry for a viewer stream.
func (c *Client) GetNextIndex(viewerStreamID uint64) (IndexReply, error) {
	body := make([]byte, 8)
	binary.BigEndian.PutUint64(body, viewerStreamID)
	if err := c.conn.SendCommand(CmdGetNextIndex, 1, body); err != nil {
		return IndexReply{}, err
	}
	reply := make([]byte, 4+4+8+8+8+8+8+8)
	if err := c.conn.RecvExact(reply); err != nil {
		return IndexReply{}, err
	}
	return IndexReply{
		Code:                ReplyCode(binary.BigEndian.Uint32(reply[0:4])),
		Flags:               ReplyFlags(binary.BigEndian.Uint32(reply[4:8])),
		PacketSizeBits:      binary.BigEndian.Uint64(reply[8:16]),
		ContentSizeBits:     binary.BigEndian.Uint64(reply[16:24]),
		TsBeginCycles:       binary.BigEndian.Uint64(reply[24:32]),
		TsEndCycles:         binary.BigEndian.Uint64(reply[32:40]),
		EventsDiscarded:     binary.BigEndian.Uint64(reply[40:48]),
		CurrentInactivityTs: binary.BigEndian.Uint64(reply[48:56]),
	}, nil
}

// GetPacket fetches the packet payload for a viewer stream at its
// current index position.
func (c *Client) GetPacket(viewerStreamID uint64, expectedLen uint32) ([]byte, ReplyFlags, error) {
	body := make([]byte, 8)
	binary.BigEndian.PutUint64(body, viewerStreamID)
	if err := c.conn.SendCommand(CmdGetPacket, 1, body); err != nil {
		return nil, 0, err
	}
	hdr := make([]byte, 12)
	if err := c.conn.RecvExact(hdr); err != nil {
		return nil, 0, err
	}
	status := binary.BigEndian.Uint32(hdr[0:4])
	flags := ReplyFlags(binary.BigEndian.Uint32(hdr[4:8]))
	length := binary.BigEndian.Uint32(hdr[8:12])
	if status != 0 {
		return nil, flags, bterr.New(bterr.KindProtocol, bterr.ActorComponent, "livemedium", "get_packet",
			fmt.Sprintf("relay returned status %d", status))
	}
	buf := make([]byte, length)
	if err := c.conn.RecvExact(buf); err != nil {
		return nil, flags, err
	}
	return buf, flags, nil
}

// GetMetadata fetches the next metadata chunk for a session.
func (c *Client) GetMetadata(metadataStreamID uint64) ([]byte, error) {
	body := make([]byte, 8)
	binary.BigEndian.PutUint64(body, metadataStreamID)
	if err := c.conn.SendCommand(CmdGetMetadata, 1, body); err != nil {
		return nil, err
	}
	hdr := make([]byte, 8)
	if err := c.conn.RecvExact(hdr); err != nil {
		return nil, err
	}
	status := binary.BigEndian.Uint32(hdr[0:4])
	length := binary.BigEndian.Uint32(hdr[4:8])
	if status != 0 {
		return nil, bterr.New(bterr.KindProtocol, bterr.ActorComponent, "livemedium", "get_metadata",
			fmt.Sprintf("relay returned status %d", status))
	}
	buf := make([]byte, length)
	if err := c.conn.RecvExact(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// GetNewStreams polls a session for streams created since the last
// attach or poll.
func (c *Client) GetNewStreams(sessionID uint64) ([]StreamInfo, error) {
	body := make([]byte, 8)
	binary.BigEndian.PutUint64(body, sessionID)
	if err := c.conn.SendCommand(CmdGetNewStreams, 1, body); err != nil {
		return nil, err
	}
	hdr := make([]byte, 8)
	if err := c.conn.RecvExact(hdr); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(hdr[4:8])

	streams := make([]StreamInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		rec := make([]byte, 24)
		if err := c.conn.RecvExact(rec); err != nil {
			return nil, err
		}
		streams = append(streams, StreamInfo{
			ViewerStreamID:   binary.BigEndian.Uint64(rec[0:8]),
			CTFStreamClassID: binary.BigEndian.Uint64(rec[8:16]),
			IsMetadata:       binary.BigEndian.Uint64(rec[16:24]) != 0,
		})
	}
	return streams, nil
}

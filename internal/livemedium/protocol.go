// Package livemedium implements a TCP client for the LTTng-live viewer
// wire protocol: big-endian u32 command codes, fixed-size request/reply
// bodies, and the reply-code-to-iterator-state mapping the per-stream
// iterator drives off of.
package livemedium

import (
	"encoding/binary"
	"io"
	"net"
	"sync/atomic"

	"ssw-trace-core/internal/bretry"
	"ssw-trace-core/internal/bterr"
)

// CommandCode identifies a viewer command.
type CommandCode uint32

const (
	CmdConnect CommandCode = iota + 1
	CmdListSessions
	CmdCreateSession
	CmdAttachSession
	CmdDetachSession
	CmdGetNextIndex
	CmdGetPacket
	CmdGetMetadata
	CmdGetNewStreams
)

// ReplyCode is the primary status code of a GET_NEXT_INDEX reply.
type ReplyCode uint32

const (
	ReplyIndexOk ReplyCode = iota
	ReplyIndexRetry
	ReplyIndexHup
	ReplyIndexInactive
	ReplyIndexErr
)

// ReplyFlags are OR'd onto any reply independent of its primary code.
type ReplyFlags uint32

const (
	FlagNewMetadata ReplyFlags = 1 << iota
	FlagNewStream
)

// ProtocolMajor/ProtocolMinor are the version this client advertises.
const (
	ProtocolMajor uint32 = 2
	ProtocolMinor uint32 = 4
)

// requestHeaderSize is command(u32) + data_size(u64) + cmd_version(u32).
const requestHeaderSize = 16

// requestHeader precedes every command's fixed-layout body.
type requestHeader struct {
	Command    CommandCode
	DataSize   uint64
	CmdVersion uint32
}

func (h requestHeader) encode() []byte {
	buf := make([]byte, requestHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.Command))
	binary.BigEndian.PutUint64(buf[4:12], h.DataSize)
	binary.BigEndian.PutUint32(buf[12:16], h.CmdVersion)
	return buf
}

// Conn wraps a TCP connection with the viewer protocol's send/receive
// discipline: header+body coalesced into one write, partial reads
// looped to completion, and an interrupter consulted on every blocking
// call instead of a per-call timeout.
type Conn struct {
	nc          net.Conn
	interrupted *int32
	backoff     bretry.Backoff
}

// NewConn wraps an established TCP connection. interrupted is the
// process-wide (or graph-wide) cancellation flag; it is read, never
// written, by this Conn.
func NewConn(nc net.Conn, interrupted *int32) *Conn {
	return &Conn{nc: nc, interrupted: interrupted, backoff: bretry.NewBackoff(bretry.DefaultRetryDuration)}
}

func (c *Conn) isInterrupted() bool {
	return atomic.LoadInt32(c.interrupted) != 0
}

// SendCommand coalesces the header and body into a single write.
func (c *Conn) SendCommand(cmd CommandCode, version uint32, body []byte) error {
	if c.isInterrupted() {
		return bterr.Interrupted(bterr.ActorComponent, "livemedium", "send_command")
	}
	hdr := requestHeader{Command: cmd, DataSize: uint64(len(body)), CmdVersion: version}
	frame := append(hdr.encode(), body...)
	return c.writeFull(frame)
}

// writeFull loops a single Write call over partial writes, treating
// EINTR as "check the interrupter, then retry" rather than an error.
func (c *Conn) writeFull(buf []byte) error {
	for len(buf) > 0 {
		n, err := c.nc.Write(buf)
		if err != nil {
			if isEINTR(err) {
				if c.isInterrupted() {
					return bterr.Interrupted(bterr.ActorComponent, "livemedium", "write")
				}
				continue
			}
			return bterr.Wrap(err, bterr.KindIO, bterr.ActorComponent, "livemedium", "write", "socket write failed")
		}
		buf = buf[n:]
	}
	return nil
}

// RecvExact loops Read calls until exactly len(buf) bytes are filled,
// applying the same EINTR/interrupter discipline as writeFull.
func (c *Conn) RecvExact(buf []byte) error {
	for len(buf) > 0 {
		if c.isInterrupted() {
			return bterr.Interrupted(bterr.ActorComponent, "livemedium", "recv")
		}
		n, err := c.nc.Read(buf)
		if err != nil {
			if err == io.EOF {
				return bterr.New(bterr.KindProtocol, bterr.ActorComponent, "livemedium", "recv",
					"connection closed by relay mid-reply")
			}
			if isEINTR(err) {
				if c.isInterrupted() {
					return bterr.Interrupted(bterr.ActorComponent, "livemedium", "recv")
				}
				continue
			}
			return bterr.Wrap(err, bterr.KindIO, bterr.ActorComponent, "livemedium", "recv", "socket read failed")
		}
		buf = buf[n:]
	}
	return nil
}

// WaitRetry sleeps bretry.DefaultRetryDuration before the next AGAIN
// attempt, checking the interrupter before sleeping. The configured
// retry_duration_us is not applied here.
func (c *Conn) WaitRetry() bool {
	return c.backoff.Sleep(c.isInterrupted)
}

func (c *Conn) Close() error { return c.nc.Close() }

func isEINTR(err error) bool {
	// net.Conn on most platforms retries EINTR internally; this hook
	// exists so a custom net.Conn (e.g. in tests) can surface it
	// explicitly via a sentinel error implementing this interface.
	type interrupted interface{ Interrupted() bool }
	if ix, ok := err.(interrupted); ok {
		return ix.Interrupted()
	}
	return false
}

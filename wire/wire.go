// Package wire specifies the external transport contract this runtime
// depends on (spec §6): an ordered, reliable, bidirectional stream capable
// of carrying tagged variant messages. The concrete implementation here is a
// length-prefixed gob codec over net.Conn; any type satisfying Channel may
// substitute it, which is what lets tests swap in Pipe instead of real TCP
// sockets and subprocesses.
package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/nurseryrun/nursery/uid"
)

// Tag names a wire message shape (spec §6 message taxonomy).
type Tag string

const (
	TagRPCCall     Tag = "rpc-call"
	TagRPCYield    Tag = "rpc-yield"
	TagRPCReturn   Tag = "rpc-return"
	TagRPCStop     Tag = "rpc-stop"
	TagRPCError    Tag = "rpc-error"
	TagCancelActor Tag = "cancel-actor"
	TagRegister    Tag = "register"
	TagUnregister  Tag = "unregister"
	TagFind        Tag = "find"
	TagFindResult  Tag = "find-result"
	TagHandshake   Tag = "handshake"
)

// Message is the single wire envelope shape every tag is carried in. Fields
// unused by a given tag are left zero.
type Message struct {
	Tag Tag
	CID string // call-id; empty for untagged messages like cancel-actor

	Module   string
	Function string
	Kwargs   map[string]any

	Value any

	ErrKind    string
	ErrMessage string
	Traceback  string

	UID  uid.UID
	Addr string
	Name string
	Addrs []string
}

// Channel is the caller-visible transport contract: ordered, reliable,
// bidirectional, message-at-a-time.
type Channel interface {
	Send(Message) error
	Recv() (Message, error)
	Close() error
	LocalAddr() string
	RemoteAddr() string
}

func init() {
	// Register the concrete types that commonly flow through Message.Value
	// and Message.Kwargs so gob can encode the any-typed fields. Additional
	// application types must be registered by the caller before first use,
	// same caveat any gob-based transport carries.
	for _, v := range []any{
		"", 0, int64(0), float64(0), false, []any{}, map[string]any{},
	} {
		gob.Register(v)
	}
}

// RegisterValueType registers an application type so it may flow through
// Message.Value / Message.Kwargs. Must be called (on both ends) before the
// type is ever sent.
func RegisterValueType(v any) {
	gob.Register(v)
}

const maxFrameSize = 64 * 1024 * 1024

// tcpChannel frames one gob-encoded Message per Send/Recv call behind a
// 4-byte big-endian length prefix.
type tcpChannel struct {
	conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex
	rmu  sync.Mutex
}

// NewChannel wraps an established net.Conn as a Channel.
func NewChannel(conn net.Conn) Channel {
	return &tcpChannel{conn: conn, r: bufio.NewReader(conn)}
}

func (c *tcpChannel) Send(msg Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(msg); err != nil {
		return fmt.Errorf("wire: encode: %w", err)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := c.conn.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := c.conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return nil
}

func (c *tcpChannel) Recv() (Message, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	var lenPrefix [4]byte
	if _, err := io.ReadFull(c.r, lenPrefix[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameSize {
		return Message{}, fmt.Errorf("wire: frame of %d bytes exceeds limit", n)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(c.r, frame); err != nil {
		return Message{}, err
	}
	var msg Message
	dec := gob.NewDecoder(bytes.NewReader(frame))
	if err := dec.Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("wire: decode: %w", err)
	}
	return msg, nil
}

func (c *tcpChannel) Close() error { return c.conn.Close() }

func (c *tcpChannel) LocalAddr() string  { return c.conn.LocalAddr().String() }
func (c *tcpChannel) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Listener accepts inbound channels.
type Listener struct {
	ln net.Listener
}

// Listen binds addr (host:port, port 0 lets the OS assign one).
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wire: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks for the next inbound channel.
func (l *Listener) Accept() (Channel, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewChannel(conn), nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() string { return l.ln.Addr().String() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Dial opens a channel to addr.
func Dial(addr string) (Channel, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", addr, err)
	}
	return NewChannel(conn), nil
}

// Handshake exchanges identity over a freshly-opened channel: the dialing
// side is expected to send first. Both ends call this before any other
// message crosses the channel (spec §4.1 step 4, §6 handshake{uid}).
func Handshake(ch Channel, self uid.UID, initiator bool) (uid.UID, error) {
	if initiator {
		if err := ch.Send(Message{Tag: TagHandshake, UID: self}); err != nil {
			return uid.UID{}, err
		}
		msg, err := ch.Recv()
		if err != nil {
			return uid.UID{}, err
		}
		if msg.Tag != TagHandshake {
			return uid.UID{}, fmt.Errorf("wire: expected handshake, got %s", msg.Tag)
		}
		return msg.UID, nil
	}
	msg, err := ch.Recv()
	if err != nil {
		return uid.UID{}, err
	}
	if msg.Tag != TagHandshake {
		return uid.UID{}, fmt.Errorf("wire: expected handshake, got %s", msg.Tag)
	}
	if err := ch.Send(Message{Tag: TagHandshake, UID: self}); err != nil {
		return uid.UID{}, err
	}
	return msg.UID, nil
}

package net

import (
	"errors"
	"io"
	"net"
	"time"
)

// PeerID identifies a session on one side of the connection.
type PeerID = uint64

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("connection closed")

// Conn is a message-oriented connection. Each transport adapts its native
// connection type to this interface so Session stays transport-agnostic.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// streamConn frames messages over an ordered byte stream (TCP, QUIC stream).
type streamConn struct {
	rw       io.ReadWriter
	closer   io.Closer
	deadline func(time.Time) error
	remote   string
	maxFrame int
}

func (c *streamConn) ReadMessage() ([]byte, error) {
	return ReadFrame(c.rw, c.maxFrame)
}

func (c *streamConn) WriteMessage(data []byte) error {
	return WriteFrame(c.rw, data)
}

func (c *streamConn) SetWriteDeadline(t time.Time) error {
	if c.deadline == nil {
		return nil
	}
	return c.deadline(t)
}

func (c *streamConn) RemoteAddr() string { return c.remote }

func (c *streamConn) Close() error { return c.closer.Close() }

// NewStreamConn adapts a net.Conn to Conn with u32 length framing.
func NewStreamConn(nc net.Conn, maxFrame int) Conn {
	return &streamConn{
		rw:       nc,
		closer:   nc,
		deadline: nc.SetWriteDeadline,
		remote:   nc.RemoteAddr().String(),
		maxFrame: maxFrame,
	}
}

package net

import (
	"sync"
	"time"
)

// pipeConn is one end of an in-memory message pipe.
type pipeConn struct {
	in     <-chan []byte
	out    chan<- []byte
	remote string

	done      chan struct{}
	peerDone  chan struct{}
	closeOnce sync.Once
}

// Pipe returns two connected in-memory Conns. Messages are delivered in
// order; closing either end makes the other end's reads fail.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, 256)
	ba := make(chan []byte, 256)
	aDone := make(chan struct{})
	bDone := make(chan struct{})
	a := &pipeConn{in: ba, out: ab, remote: "pipe:b", done: aDone, peerDone: bDone}
	b := &pipeConn{in: ab, out: ba, remote: "pipe:a", done: bDone, peerDone: aDone}
	return a, b
}

func (c *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		return nil, ErrClosed
	case <-c.peerDone:
		// deliver what the peer wrote before closing
		select {
		case data := <-c.in:
			return data, nil
		default:
			return nil, ErrClosed
		}
	}
}

func (c *pipeConn) WriteMessage(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case <-c.done:
		return ErrClosed
	case <-c.peerDone:
		return ErrClosed
	default:
	}
	select {
	case c.out <- buf:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.peerDone:
		return ErrClosed
	}
}

func (c *pipeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *pipeConn) RemoteAddr() string { return c.remote }

func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

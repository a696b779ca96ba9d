package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TCPListener accepts TCP connections and attaches them to a Hub.
type TCPListener struct {
	listener  net.Listener
	hub       *Hub
	maxFrame  int
	log       *zap.Logger
	closeCh   chan struct{}
	closeOnce sync.Once
}

func ListenTCP(bindAddr string, hub *Hub, maxFrame int, log *zap.Logger) (*TCPListener, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", bindAddr, err)
	}
	return &TCPListener{
		listener: ln,
		hub:      hub,
		maxFrame: maxFrame,
		log:      log,
		closeCh:  make(chan struct{}),
	}, nil
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (l *TCPListener) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-l.closeCh:
		}
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.log.Error("連線接受失敗", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		l.hub.Attach(NewStreamConn(conn, l.maxFrame))
	}
}

func (l *TCPListener) Addr() string {
	return l.listener.Addr().String()
}

// Close stops accepting new connections.
func (l *TCPListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closeCh)
		err = l.listener.Close()
	})
	return err
}

// DialTCP connects to a TCP listener.
func DialTCP(ctx context.Context, addr string, maxFrame int) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", addr, err)
	}
	return NewStreamConn(conn, maxFrame), nil
}

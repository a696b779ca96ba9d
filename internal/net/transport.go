package net

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Transport names accepted in config.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
)

// Listener accepts connections for a Hub until Serve returns.
type Listener interface {
	Serve(ctx context.Context) error
	Addr() string
	Close() error
}

// Listen opens a listener of the named transport feeding hub.
func Listen(transport, bindAddr string, hub *Hub, maxFrame int, log *zap.Logger) (Listener, error) {
	var (
		l   Listener
		err error
	)
	switch transport {
	case TransportTCP, "":
		l, err = ListenTCP(bindAddr, hub, maxFrame, log)
	case TransportWebSocket:
		l, err = ListenWebSocket(bindAddr, DefaultWebSocketPath, hub, maxFrame, log)
	case TransportQUIC:
		l, err = ListenQUIC(bindAddr, nil, hub, maxFrame, log)
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Dial connects to addr over the named transport.
func Dial(ctx context.Context, transport, addr string, maxFrame int) (Conn, error) {
	switch transport {
	case TransportTCP, "":
		return DialTCP(ctx, addr, maxFrame)
	case TransportWebSocket:
		return DialWebSocket(ctx, addr, maxFrame)
	case TransportQUIC:
		return DialQUIC(ctx, addr, maxFrame)
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

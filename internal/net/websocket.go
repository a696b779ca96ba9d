package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultWebSocketPath is where WebSocketListener upgrades connections.
const DefaultWebSocketPath = "/ws"

// wsConn carries one message per binary WebSocket frame.
type wsConn struct {
	c *websocket.Conn
}

func newWSConn(c *websocket.Conn, maxFrame int) *wsConn {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	c.SetReadLimit(int64(maxFrame))
	return &wsConn{c: c}
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.c.WriteMessage(websocket.BinaryMessage, data)
}

func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.c.SetWriteDeadline(t) }

func (w *wsConn) RemoteAddr() string { return w.c.RemoteAddr().String() }

func (w *wsConn) Close() error {
	w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.c.Close()
}

// WebSocketListener upgrades HTTP requests on one path and attaches the
// resulting connections to a Hub.
type WebSocketListener struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	hub      *Hub
	maxFrame int
	log      *zap.Logger
}

func ListenWebSocket(bindAddr, path string, hub *Hub, maxFrame int, log *zap.Logger) (*WebSocketListener, error) {
	if path == "" {
		path = DefaultWebSocketPath
	}
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("listen websocket %s: %w", bindAddr, err)
	}
	l := &WebSocketListener{
		ln:  ln,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		maxFrame: maxFrame,
		log:      log,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handle)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return l, nil
}

func (l *WebSocketListener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.log.Debug("websocket 升級失敗", zap.Error(err))
		return
	}
	l.hub.Attach(newWSConn(conn, l.maxFrame))
}

// Serve handles upgrades until ctx is cancelled or Close is called.
func (l *WebSocketListener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	if err := l.srv.Serve(l.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve websocket: %w", err)
	}
	return nil
}

func (l *WebSocketListener) Addr() string { return l.ln.Addr().String() }

// Close stops the HTTP server. Upgraded connections belong to the hub.
func (l *WebSocketListener) Close() error {
	return l.srv.Close()
}

// DialWebSocket connects to a WebSocketListener. addr may be a full ws://
// URL or a bare host:port, in which case DefaultWebSocketPath is used.
func DialWebSocket(ctx context.Context, addr string, maxFrame int) (Conn, error) {
	url := addr
	if !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
		url = "ws://" + addr + DefaultWebSocketPath
	}
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket %s: %w", url, err)
	}
	return newWSConn(c, maxFrame), nil
}

package net

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/zap"
)

// QUICProtocol is the ALPN token both ends negotiate.
const QUICProtocol = "voxelnet"

// quicHello opens the stream. QUIC streams are invisible to the peer until
// the opener writes to them.
var quicHello = []byte("VXN1")

var ErrBadHello = errors.New("quic: bad stream hello")

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  60 * time.Second,
	}
}

// quicConn frames messages on the single bidirectional stream of a QUIC
// connection.
type quicConn struct {
	conn     quic.Connection
	stream   quic.Stream
	maxFrame int
}

func (q *quicConn) ReadMessage() ([]byte, error) {
	return ReadFrame(q.stream, q.maxFrame)
}

func (q *quicConn) WriteMessage(data []byte) error {
	return WriteFrame(q.stream, data)
}

func (q *quicConn) SetWriteDeadline(t time.Time) error { return q.stream.SetWriteDeadline(t) }

func (q *quicConn) RemoteAddr() string { return q.conn.RemoteAddr().String() }

func (q *quicConn) Close() error {
	q.stream.Close()
	return q.conn.CloseWithError(0, "closed")
}

// QUICListener accepts QUIC connections and attaches their first stream to
// a Hub.
type QUICListener struct {
	ln       *quic.Listener
	hub      *Hub
	maxFrame int
	log      *zap.Logger
}

// ListenQUIC listens on bindAddr. A nil tlsConf generates a self-signed
// certificate.
func ListenQUIC(bindAddr string, tlsConf *tls.Config, hub *Hub, maxFrame int, log *zap.Logger) (*QUICListener, error) {
	if tlsConf == nil {
		var err error
		tlsConf, err = selfSignedTLS()
		if err != nil {
			return nil, fmt.Errorf("quic tls: %w", err)
		}
	}
	ln, err := quic.ListenAddr(bindAddr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("listen quic %s: %w", bindAddr, err)
	}
	return &QUICListener{ln: ln, hub: hub, maxFrame: maxFrame, log: log}, nil
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (l *QUICListener) Serve(ctx context.Context) error {
	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			l.log.Error("QUIC 連線接受失敗", zap.Error(err))
			continue
		}
		go l.accept(ctx, conn)
	}
}

func (l *QUICListener) accept(ctx context.Context, conn quic.Connection) {
	actx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	stream, err := conn.AcceptStream(actx)
	if err != nil {
		l.log.Debug("QUIC 串流接受失敗", zap.Error(err))
		conn.CloseWithError(1, "no stream")
		return
	}
	hello := make([]byte, len(quicHello))
	if _, err := io.ReadFull(stream, hello); err != nil || !bytes.Equal(hello, quicHello) {
		l.log.Debug("QUIC 握手失敗", zap.Error(err))
		conn.CloseWithError(1, "bad hello")
		return
	}
	l.hub.Attach(&quicConn{conn: conn, stream: stream, maxFrame: l.maxFrame})
}

func (l *QUICListener) Addr() string { return l.ln.Addr().String() }

func (l *QUICListener) Close() error { return l.ln.Close() }

// DialQUIC connects to a QUICListener. Certificates are not verified; the
// transport only provides framing and congestion control here.
func DialQUIC(ctx context.Context, addr string, maxFrame int) (Conn, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{QUICProtocol},
		MinVersion:         tls.VersionTLS13,
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial quic %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(1, "open stream")
		return nil, fmt.Errorf("open quic stream: %w", err)
	}
	if _, err := stream.Write(quicHello); err != nil {
		conn.CloseWithError(1, "hello")
		return nil, fmt.Errorf("write quic hello: %w", err)
	}
	return &quicConn{conn: conn, stream: stream, maxFrame: maxFrame}, nil
}

func selfSignedTLS() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{Organization: []string{"voxelnet"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{QUICProtocol},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

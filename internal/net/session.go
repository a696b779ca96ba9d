package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionConfig sizes the per-session queues.
type SessionConfig struct {
	InQueueSize  int
	OutQueueSize int
	WriteTimeout time.Duration
	// PacketsPerSecond disconnects peers that exceed it. 0 = unlimited.
	PacketsPerSecond int
}

// Session represents a single peer connection. Network I/O runs in
// dedicated goroutines; replication state is touched only from the tick loop.
type Session struct {
	ID    PeerID
	Token uuid.UUID
	conn  Conn

	InQueue  chan []byte // tick loop reads messages from here
	OutQueue chan []byte // writer goroutine reads from here

	Addr string

	outBuf [][]byte // buffered messages, flushed by the Output phase (tick loop only)

	writeTimeout time.Duration

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// readLoop goroutine only
	pktPerSec  int
	pktCount   int
	pktResetAt int64

	log *zap.Logger
}

func NewSession(conn Conn, id PeerID, cfg SessionConfig, log *zap.Logger) *Session {
	if cfg.InQueueSize <= 0 {
		cfg.InQueueSize = 128
	}
	if cfg.OutQueueSize <= 0 {
		cfg.OutQueueSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	token := uuid.New()
	return &Session{
		ID:           id,
		Token:        token,
		conn:         conn,
		InQueue:      make(chan []byte, cfg.InQueueSize),
		OutQueue:     make(chan []byte, cfg.OutQueueSize),
		Addr:         conn.RemoteAddr(),
		writeTimeout: cfg.WriteTimeout,
		closeCh:      make(chan struct{}),
		pktPerSec:    cfg.PacketsPerSecond,
		log:          log.With(zap.Uint64("peer", id), zap.String("token", token.String())),
	}
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a message. Nothing is written until FlushOutput.
// Tick loop only.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput moves buffered messages to OutQueue for the writer goroutine.
// Non-blocking: a full OutQueue disconnects the peer.
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("輸出佇列已滿，斷開慢速連線")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close shuts the session down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}

		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("封包速率超限，斷開連線", zap.Int("pps", s.pktCount))
				return
			}
		}

		// Block until InQueue has space or the session closes.
		select {
		case s.InQueue <- data:
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOne(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(data []byte) bool {
	s.log.Debug("TX", zap.Int("len", len(data)))

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("寫入錯誤", zap.Error(err))
		}
		return false
	}
	return true
}

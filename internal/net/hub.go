package net

import (
	"errors"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
)

var ErrHubFull = errors.New("connection queue full")

// Hub owns every session of one endpoint. Listeners and dialers call Attach
// from their own goroutines; everything else runs on the tick loop.
type Hub struct {
	cfg      SessionConfig
	nextID   atomic.Uint64
	newConns chan *Session

	sessions map[PeerID]*Session

	onConnect    []func(PeerID)
	onDisconnect []func(PeerID)

	log *zap.Logger
}

func NewHub(cfg SessionConfig, log *zap.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		newConns: make(chan *Session, 64),
		sessions: make(map[PeerID]*Session, 64),
		log:      log,
	}
}

// Attach wraps conn in a session, starts its I/O goroutines and queues it
// for admission on the next Poll.
func (h *Hub) Attach(conn Conn) (*Session, error) {
	id := h.nextID.Add(1)
	sess := NewSession(conn, id, h.cfg, h.log)
	sess.Start()

	select {
	case h.newConns <- sess:
	default:
		h.log.Warn("連線佇列已滿，拒絕新連線", zap.String("addr", sess.Addr))
		sess.Close()
		return nil, ErrHubFull
	}
	h.log.Info("對端連線", zap.Uint64("peer", id), zap.String("addr", sess.Addr))
	return sess, nil
}

// OnPeerConnected registers fn to run on the tick loop when a session is admitted.
func (h *Hub) OnPeerConnected(fn func(PeerID)) {
	h.onConnect = append(h.onConnect, fn)
}

// OnPeerDisconnected registers fn to run on the tick loop after a session
// closed and its remaining input was drained.
func (h *Hub) OnPeerDisconnected(fn func(PeerID)) {
	h.onDisconnect = append(h.onDisconnect, fn)
}

// Poll admits new sessions, reaps closed ones and hands up to maxPerPeer
// inbound messages per session to fn.
func (h *Hub) Poll(maxPerPeer int, fn func(peer PeerID, data []byte)) {
	for {
		select {
		case sess := <-h.newConns:
			h.sessions[sess.ID] = sess
			for _, cb := range h.onConnect {
				cb(sess.ID)
			}
			continue
		default:
		}
		break
	}

	for _, id := range h.Peers() {
		sess := h.sessions[id]
		closed := sess.IsClosed()
		h.drain(sess, maxPerPeer, fn)
		if !closed {
			continue
		}
		sess.FlushOutput()
		delete(h.sessions, id)
		h.log.Info("對端斷線", zap.Uint64("peer", id))
		for _, cb := range h.onDisconnect {
			cb(id)
		}
	}
}

func (h *Hub) drain(sess *Session, max int, fn func(PeerID, []byte)) {
	for i := 0; max <= 0 || i < max; i++ {
		select {
		case data := <-sess.InQueue:
			fn(sess.ID, data)
		default:
			return
		}
	}
}

// Send buffers data for peer. Returns false for unknown or closed peers.
func (h *Hub) Send(peer PeerID, data []byte) bool {
	sess, ok := h.sessions[peer]
	if !ok || sess.IsClosed() {
		return false
	}
	sess.Send(data)
	return true
}

// Broadcast buffers data for every admitted session.
func (h *Hub) Broadcast(data []byte) {
	for _, sess := range h.sessions {
		sess.Send(data)
	}
}

// Flush moves every session's buffered output to its writer goroutine.
func (h *Hub) Flush() {
	for _, sess := range h.sessions {
		sess.FlushOutput()
	}
}

// Peers returns admitted session ids in ascending order.
func (h *Hub) Peers() []PeerID {
	ids := make([]PeerID, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Hub) Session(id PeerID) (*Session, bool) {
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Hub) Len() int { return len(h.sessions) }

// Close flushes and closes every session, including ones not yet admitted.
func (h *Hub) Close() {
	for _, sess := range h.sessions {
		sess.FlushOutput()
		sess.Close()
	}
	for {
		select {
		case sess := <-h.newConns:
			sess.Close()
		default:
			return
		}
	}
}

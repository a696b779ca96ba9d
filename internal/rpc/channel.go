// Package rpc multiplexes asynchronous calls and their responses over the
// RpcChannel of a connection.
package rpc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/voxelnet/server/internal/net/packet"
	"go.uber.org/zap"
)

// Gate decides whether a peer may run a request kind.
type Gate interface {
	IsAuthorized(peer uint64, kind Kind) bool
}

// AllowAll authorizes every request.
type AllowAll struct{}

func (AllowAll) IsAuthorized(uint64, Kind) bool { return true }

// Sender delivers encoded messages. net.Hub satisfies it.
type Sender interface {
	Send(peer uint64, data []byte) bool
	Broadcast(data []byte)
}

type record struct {
	callID uint64
	msg    Message
}

// Channel is one side's RPC endpoint: it issues calls, tracks the pending
// ones, serves inbound requests and batches everything outgoing until
// Flush. IssueCall, Reply, Broadcast, FailPeer and Pending are safe from
// any goroutine; Receive and Flush run on the simulation thread.
type Channel struct {
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*Handle

	outMu     sync.Mutex
	outbox    map[uint64][]record
	outOrder  []uint64
	broadcast []record

	reg  *Registry
	gate Gate
	log  *zap.Logger
}

// NewChannel creates a channel serving requests through reg. A nil gate
// authorizes everything.
func NewChannel(reg *Registry, gate Gate, log *zap.Logger) *Channel {
	if gate == nil {
		gate = AllowAll{}
	}
	return &Channel{
		pending: make(map[uint64]*Handle),
		outbox:  make(map[uint64][]record),
		reg:     reg,
		gate:    gate,
		log:     log,
	}
}

// SetGate replaces the permission gate. Startup only.
func (c *Channel) SetGate(g Gate) { c.gate = g }

// IssueCall queues msg for peer and returns immediately. Calls that expect
// a response get the next call id and a pending handle; the rest go out
// with id 0 and an already resolved handle.
func (c *Channel) IssueCall(peer uint64, msg Message) *Handle {
	kind := msg.Kind()
	if kind.IsResponse() {
		h := newHandle(0, kind, peer)
		h.resolve(nil, fmt.Errorf("%w: %s is not a request", ErrUnknownKind, kind))
		return h
	}
	if _, ok := kind.Response(); !ok {
		c.enqueue(peer, record{msg: msg})
		return resolvedHandle(kind, peer)
	}

	id := c.nextID.Add(1)
	h := newHandle(id, kind, peer)
	c.mu.Lock()
	c.pending[id] = h
	c.mu.Unlock()
	c.enqueue(peer, record{callID: id, msg: msg})
	return h
}

// Reply queues a response to peer under the caller's call id.
func (c *Channel) Reply(peer, callID uint64, msg Message) {
	c.enqueue(peer, record{callID: callID, msg: msg})
}

// Broadcast queues msg for every peer with call id 0.
func (c *Channel) Broadcast(msg Message) {
	c.outMu.Lock()
	c.broadcast = append(c.broadcast, record{msg: msg})
	c.outMu.Unlock()
}

func (c *Channel) enqueue(peer uint64, rec record) {
	c.outMu.Lock()
	if _, ok := c.outbox[peer]; !ok {
		c.outOrder = append(c.outOrder, peer)
	}
	c.outbox[peer] = append(c.outbox[peer], rec)
	c.outMu.Unlock()
}

// Pending returns the number of unresolved calls.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// FailPeer resolves every call addressed to peer with ErrPeerDisconnected
// and drops anything still queued for it. Returns the number failed.
func (c *Channel) FailPeer(peer uint64) int {
	c.outMu.Lock()
	if _, ok := c.outbox[peer]; ok {
		delete(c.outbox, peer)
		c.outOrder = removePeer(c.outOrder, peer)
	}
	c.outMu.Unlock()

	c.mu.Lock()
	var failed []*Handle
	for id, h := range c.pending {
		if h.peer == peer {
			failed = append(failed, h)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, h := range failed {
		h.resolve(nil, fmt.Errorf("%w: peer %d", ErrPeerDisconnected, peer))
	}
	if len(failed) > 0 {
		c.log.Debug("斷線使 RPC 呼叫失敗", zap.Uint64("peer", peer), zap.Int("calls", len(failed)))
	}
	return len(failed)
}

// Flush sends each peer's queued records as one message, then the
// broadcast queue as one message to everyone. Returns messages sent.
func (c *Channel) Flush(s Sender) int {
	c.outMu.Lock()
	order, outbox, bcast := c.outOrder, c.outbox, c.broadcast
	c.outOrder, c.outbox, c.broadcast = nil, make(map[uint64][]record), nil
	c.outMu.Unlock()

	sent := 0
	for _, peer := range order {
		data := packet.EncodeEnvelope(packet.ChannelRPC, encodeBatch(outbox[peer]))
		if !s.Send(peer, data) {
			c.log.Debug("RPC 目標已離線", zap.Uint64("peer", peer))
			c.FailPeer(peer)
			continue
		}
		sent++
	}
	if len(bcast) > 0 {
		s.Broadcast(packet.EncodeEnvelope(packet.ChannelRPC, encodeBatch(bcast)))
		sent++
	}
	return sent
}

// encodeBatch writes count u32 then (callId u64, kind u8, fields) records.
func encodeBatch(recs []record) []byte {
	w := packet.NewWriter()
	w.WriteU32(uint32(len(recs)))
	for _, rec := range recs {
		w.WriteU64(rec.callID)
		w.WriteU8(uint8(rec.msg.Kind()))
		rec.msg.Encode(w)
	}
	return w.Bytes()
}

func decodeBatch(payload []byte) ([]record, error) {
	r := packet.NewReader(payload)
	n := r.ReadCount(9)
	recs := make([]record, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		id := r.ReadU64()
		kind := Kind(r.ReadU8())
		if r.Err() != nil {
			break
		}
		msg := newMessage(kind)
		if msg == nil {
			return nil, fmt.Errorf("%w: %d in record %d", ErrUnknownKind, uint8(kind), i)
		}
		msg.Decode(r)
		recs = append(recs, record{callID: id, msg: msg})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode rpc batch: %w", err)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("decode rpc batch: %w: %d trailing bytes", packet.ErrMalformed, r.Remaining())
	}
	return recs, nil
}

// Receive decodes one RpcChannel payload from peer and dispatches every
// record in order. A malformed payload is rejected as a whole before any
// record runs.
func (c *Channel) Receive(peer uint64, payload []byte) error {
	recs, err := decodeBatch(payload)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.msg.Kind().IsResponse() {
			c.resolve(peer, rec)
		} else {
			c.serve(peer, rec)
		}
	}
	return nil
}

func (c *Channel) resolve(peer uint64, rec record) {
	if rec.callID == 0 {
		c.reg.observe(peer, rec.msg)
		return
	}
	c.mu.Lock()
	h, ok := c.pending[rec.callID]
	if ok && h.peer == peer {
		delete(c.pending, rec.callID)
	}
	c.mu.Unlock()

	if !ok || h.peer != peer {
		c.log.Debug("丟棄未知呼叫的回應",
			zap.Uint64("peer", peer),
			zap.Uint64("call", rec.callID),
			zap.Stringer("kind", rec.msg.Kind()),
		)
		return
	}
	if want, _ := h.kind.Response(); want != rec.msg.Kind() {
		h.resolve(rec.msg, fmt.Errorf("%w: %s for %s", ErrUnexpectedReply, rec.msg.Kind(), h.kind))
		return
	}
	h.resolve(rec.msg, nil)
}

func (c *Channel) serve(peer uint64, rec record) {
	kind := rec.msg.Kind()
	if !c.gate.IsAuthorized(peer, kind) {
		c.log.Debug("未授權的 RPC 已丟棄", zap.Uint64("peer", peer), zap.Stringer("kind", kind))
		return
	}
	reply, err := c.reg.serve(Request{Peer: peer, CallID: rec.callID, Msg: rec.msg})

	respKind, expects := kind.Response()
	if !expects || rec.callID == 0 {
		return
	}
	if err != nil || reply == nil {
		// zero responses report failure
		reply = newMessage(respKind)
	}
	c.Reply(peer, rec.callID, reply)
}

func removePeer(peers []uint64, peer uint64) []uint64 {
	for i, p := range peers {
		if p == peer {
			return append(peers[:i], peers[i+1:]...)
		}
	}
	return peers
}

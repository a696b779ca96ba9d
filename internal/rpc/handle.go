package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownKind      = errors.New("unknown rpc kind")
	ErrCallFailed       = errors.New("rpc call failed")
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrUnexpectedReply  = errors.New("unexpected rpc reply type")
)

// Handle is the completion slot of one issued call. It resolves exactly
// once, with a response or an error.
type Handle struct {
	id   uint64
	kind Kind
	peer uint64

	once sync.Once
	done chan struct{}
	msg  Message
	err  error
}

func newHandle(id uint64, kind Kind, peer uint64) *Handle {
	return &Handle{id: id, kind: kind, peer: peer, done: make(chan struct{})}
}

// resolvedHandle is returned for fire-and-forget calls.
func resolvedHandle(kind Kind, peer uint64) *Handle {
	h := newHandle(0, kind, peer)
	h.resolve(nil, nil)
	return h
}

func (h *Handle) resolve(msg Message, err error) {
	h.once.Do(func() {
		h.msg, h.err = msg, err
		close(h.done)
	})
}

// CallID is the id the call went out with. Zero for fire-and-forget.
func (h *Handle) CallID() uint64 { return h.id }

func (h *Handle) Kind() Kind { return h.kind }

// Done is closed once the handle resolves.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Resolved reports whether the handle has a result.
func (h *Handle) Resolved() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the response and error. Both are nil while pending.
func (h *Handle) Result() (Message, error) {
	if !h.Resolved() {
		return nil, nil
	}
	return h.msg, h.err
}

// Wait blocks until the handle resolves or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Message, error) {
	select {
	case <-h.done:
		return h.msg, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Await waits for h and returns its response as T. A response reporting
// failure is returned together with ErrCallFailed.
func Await[T Message](ctx context.Context, h *Handle) (T, error) {
	var zero T
	msg, err := h.Wait(ctx)
	if err != nil {
		return zero, err
	}
	v, ok := msg.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T for %s", ErrUnexpectedReply, msg, h.kind)
	}
	if f, ok := msg.(Failer); ok && f.Failed() {
		return v, fmt.Errorf("%w: %s", ErrCallFailed, h.kind)
	}
	return v, nil
}

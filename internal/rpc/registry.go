package rpc

import (
	"fmt"

	"go.uber.org/zap"
)

// Request is one inbound call handed to a handler.
type Request struct {
	Peer   uint64
	CallID uint64
	Msg    Message
}

// HandlerFunc serves a request. The returned message is sent back to the
// caller when the call expects a response; nil means "no reply".
type HandlerFunc func(req Request) Message

// ResponseFunc receives responses nobody waits on, i.e. broadcasts sent
// with call id 0.
type ResponseFunc func(peer uint64, msg Message)

// Registry maps kinds to handlers. Registration happens at startup, before
// the tick loop runs.
type Registry struct {
	handlers  map[Kind]HandlerFunc
	observers map[Kind]ResponseFunc
	log       *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers:  make(map[Kind]HandlerFunc),
		observers: make(map[Kind]ResponseFunc),
		log:       log,
	}
}

// Handle registers fn for a request kind.
func (reg *Registry) Handle(kind Kind, fn HandlerFunc) {
	reg.handlers[kind] = fn
}

// Observe registers fn for broadcast responses of kind.
func (reg *Registry) Observe(kind Kind, fn ResponseFunc) {
	reg.observers[kind] = fn
}

// Kinds returns the number of registered request handlers.
func (reg *Registry) Kinds() int { return len(reg.handlers) }

func (reg *Registry) serve(req Request) (reply Message, err error) {
	fn, ok := reg.handlers[req.Msg.Kind()]
	if !ok {
		reg.log.Debug("未註冊的 RPC 處理器", zap.Stringer("kind", req.Msg.Kind()))
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			reg.log.Error("RPC 處理器 panic",
				zap.Stringer("kind", req.Msg.Kind()),
				zap.Uint64("peer", req.Peer),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			reply, err = nil, fmt.Errorf("panic in %s handler: %v", req.Msg.Kind(), r)
		}
	}()
	return fn(req), nil
}

func (reg *Registry) observe(peer uint64, msg Message) {
	fn, ok := reg.observers[msg.Kind()]
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			reg.log.Error("RPC 回應處理器 panic",
				zap.Stringer("kind", msg.Kind()),
				zap.Any("panic", r),
			)
		}
	}()
	fn(peer, msg)
}

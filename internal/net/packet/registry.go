package packet

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Channel names carried in the outer envelope of every message.
const (
	ChannelSync = "NetSyncChannel"
	ChannelRPC  = "RpcChannel"
)

// ErrUnknownChannel is returned by Dispatch for envelopes naming a channel
// nothing is registered for.
var ErrUnknownChannel = errors.New("unknown channel")

// EncodeEnvelope wraps payload as (channel string, payload bytes).
func EncodeEnvelope(channel string, payload []byte) []byte {
	w := &Writer{buf: make([]byte, 0, 8+len(channel)+len(payload))}
	w.WriteString(channel)
	w.WriteBytes(payload)
	return w.Bytes()
}

// DecodeEnvelope splits a message into its channel name and payload.
func DecodeEnvelope(data []byte) (string, []byte, error) {
	r := NewReader(data)
	channel := r.ReadString()
	payload := r.ReadBytes()
	if err := r.Err(); err != nil {
		return "", nil, fmt.Errorf("decode envelope: %w", err)
	}
	return channel, payload, nil
}

// HandlerFunc receives the payload of one message from peer.
type HandlerFunc func(peer uint64, payload []byte) error

// Registry maps channel names to handlers.
type Registry struct {
	handlers map[string]HandlerFunc
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		log:      log,
	}
}

// Register maps a channel to a handler, replacing any previous one.
func (reg *Registry) Register(channel string, fn HandlerFunc) {
	reg.handlers[channel] = fn
}

// Dispatch decodes the envelope in data and calls the channel's handler.
// A protocol error aborts only this message.
func (reg *Registry) Dispatch(peer uint64, data []byte) error {
	channel, payload, err := DecodeEnvelope(data)
	if err != nil {
		return err
	}
	fn, ok := reg.handlers[channel]
	if !ok {
		reg.log.Debug("未知頻道", zap.String("channel", channel), zap.Uint64("peer", peer))
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return reg.safeCall(fn, peer, payload, channel)
}

// safeCall runs a handler with panic recovery so a single bad message
// cannot take down the tick loop.
func (reg *Registry) safeCall(fn HandlerFunc, peer uint64, payload []byte, channel string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("頻道處理器 panic 已恢復",
				zap.String("channel", channel),
				zap.Uint64("peer", peer),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic on channel %s: %v", channel, rec)
		}
	}()
	return fn(peer, payload)
}

package packet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriterReaderFields(t *testing.T) {
	w := NewWriter()
	w.WriteU8(7)
	w.WriteBool(true)
	w.WriteU32(0xdeadbeef)
	w.WriteI32(-5)
	w.WriteU64(1 << 40)
	w.WriteF32(1.5)
	w.WriteString("default.floor")
	w.WriteBytes([]byte{1, 2, 3})

	r := NewReader(w.Bytes())
	assert.Equal(t, uint8(7), r.ReadU8())
	assert.True(t, r.ReadBool())
	assert.Equal(t, uint32(0xdeadbeef), r.ReadU32())
	assert.Equal(t, int32(-5), r.ReadI32())
	assert.Equal(t, uint64(1<<40), r.ReadU64())
	assert.Equal(t, float32(1.5), r.ReadF32())
	assert.Equal(t, "default.floor", r.ReadString())
	assert.Equal(t, []byte{1, 2, 3}, r.ReadBytes())
	require.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())
}

func TestLittleEndianLayout(t *testing.T) {
	w := NewWriter()
	w.WriteU32(1)
	w.WriteString("ab")
	assert.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0, 'a', 'b'}, w.Bytes())
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{1, 0})
	assert.Zero(t, r.ReadU32())
	require.ErrorIs(t, r.Err(), ErrTruncated)

	// later reads keep returning zero values and the first error
	assert.Zero(t, r.ReadU8())
	assert.Empty(t, r.ReadString())
	require.ErrorIs(t, r.Err(), ErrTruncated)
}

func TestReaderStringLengthPastEnd(t *testing.T) {
	w := NewWriter()
	w.WriteU32(100)
	w.WriteRaw([]byte("short"))
	r := NewReader(w.Bytes())
	assert.Empty(t, r.ReadString())
	assert.ErrorIs(t, r.Err(), ErrTruncated)
}

func TestReaderBadBool(t *testing.T) {
	r := NewReader([]byte{2})
	r.ReadBool()
	assert.ErrorIs(t, r.Err(), ErrMalformed)
}

func TestReadCountRejectsImpossibleCounts(t *testing.T) {
	w := NewWriter()
	w.WriteU32(1_000_000)
	w.WriteU32(1)
	r := NewReader(w.Bytes())
	assert.Zero(t, r.ReadCount(4))
	assert.ErrorIs(t, r.Err(), ErrTruncated)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	data := EncodeEnvelope(ChannelRPC, []byte{9, 8})
	channel, payload, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, ChannelRPC, channel)
	assert.Equal(t, []byte{9, 8}, payload)

	_, _, err = DecodeEnvelope(data[:3])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	var gotPeer uint64
	var gotPayload []byte
	reg.Register(ChannelSync, func(peer uint64, payload []byte) error {
		gotPeer, gotPayload = peer, payload
		return nil
	})
	reg.Register(ChannelRPC, func(uint64, []byte) error {
		panic("boom")
	})

	require.NoError(t, reg.Dispatch(3, EncodeEnvelope(ChannelSync, []byte("x"))))
	assert.Equal(t, uint64(3), gotPeer)
	assert.Equal(t, []byte("x"), gotPayload)

	err := reg.Dispatch(3, EncodeEnvelope("Nope", nil))
	assert.True(t, errors.Is(err, ErrUnknownChannel))

	err = reg.Dispatch(3, EncodeEnvelope(ChannelRPC, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrTruncated means a read ran past the end of the payload.
	ErrTruncated = errors.New("packet truncated")
	// ErrMalformed means a field held a value the decoder cannot accept.
	ErrMalformed = errors.New("packet malformed")
)

// Reader reads fields from a payload. The first failed read sets a sticky
// error; later reads return zero values, so callers check Err once at the end.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.off, len(r.data)-r.off)
		return false
	}
	return true
}

func (r *Reader) ReadU8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadBool reads 1 byte. Any value other than 0 or 1 is malformed.
func (r *Reader) ReadBool() bool {
	v := r.ReadU8()
	if v > 1 && r.err == nil {
		r.err = fmt.Errorf("%w: bool byte %d at offset %d", ErrMalformed, v, r.off-1)
	}
	return v == 1
}

func (r *Reader) ReadU32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *Reader) ReadI32() int32 {
	return int32(r.ReadU32())
}

func (r *Reader) ReadU64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

func (r *Reader) ReadF32() float32 {
	return math.Float32frombits(r.ReadU32())
}

// ReadString reads a u32-length-prefixed string.
func (r *Reader) ReadString() string {
	n := r.ReadU32()
	if !r.need(int(n)) {
		return ""
	}
	s := string(r.data[r.off : r.off+int(n)])
	r.off += int(n)
	return s
}

// ReadBytes reads a u32-length-prefixed blob. The result is a copy.
func (r *Reader) ReadBytes() []byte {
	n := r.ReadU32()
	if !r.need(int(n)) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+int(n)])
	r.off += int(n)
	return b
}

// ReadCount reads a u32 element count and rejects counts that could not fit
// in the remaining bytes given a minimum record size.
func (r *Reader) ReadCount(minRecord int) int {
	n := r.ReadU32()
	if r.err != nil {
		return 0
	}
	if minRecord > 0 && uint64(n)*uint64(minRecord) > uint64(r.Remaining()) {
		r.err = fmt.Errorf("%w: count %d exceeds remaining %d bytes", ErrTruncated, n, r.Remaining())
		return 0
	}
	return int(n)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns the first decode error, if any.
func (r *Reader) Err() error {
	return r.err
}

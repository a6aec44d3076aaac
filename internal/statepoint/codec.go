package statepoint

import (
	"context"
	"encoding/binary"
	"math"

	"golang.org/x/time/rate"
)

// All backends share one little-endian value encoding, so a scalar
// written through the sequential backend is bit-identical to the same
// scalar written through the collective stream.

func packFloat64s(vals []float64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func unpackFloat64s(data []byte, dst []float64) {
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
}

func packInt32s(vals []int32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func unpackInt32s(data []byte, dst []int32) {
	for i := range dst {
		dst[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
}

func packInt64(v int64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(v))
	return out
}

func unpackInt64(data []byte) int64 {
	return int64(binary.LittleEndian.Uint64(data))
}

// packString lays s into a fixed-length zero-padded field, truncating
// when s is longer than the declared length.
func packString(s string, length int64) []byte {
	out := make([]byte, length)
	copy(out, s)
	return out
}

func unpackString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// throttle blocks until the limiter admits n bytes. Writes larger than
// the limiter burst are admitted in burst-sized installments.
func throttle(l *rate.Limiter, n int) {
	if l == nil || n == 0 {
		return
	}
	ctx := context.Background()
	burst := l.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		// WaitN only fails on context cancellation or n > burst;
		// neither can happen here.
		_ = l.WaitN(ctx, chunk)
		n -= chunk
	}
}

func newLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := int(bytesPerSec)
	const minBurst = 64 << 10
	if burst < minBurst {
		burst = minBurst
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

/*
NAME
  ring.go

DESCRIPTION
  ring.go implements the lock-free single-producer/single-consumer byte
  ring buffer at the heart of the bridge. It owns
  the staging buffers used by conversion push paths and the S24
  auto-detection state.

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package ring implements the lock-free SPSC byte ring buffer that
// sits between the producer loop and the consumer callback, including
// inline format-conversion push paths and S24 alignment auto-detection.
//
// The ring is safe for exactly one writer goroutine and exactly one
// reader goroutine operating concurrently; any other access (resize,
// clear, stats) must be externally serialized with the writer and
// reader, as sink.Controller's reconfiguration guard does.
package ring

import (
	"sync/atomic"

	"github.com/ausocean/sqfbridge/convert"
)

// stagingSize is the size in bytes of each of the ring's four owned
// staging buffers, used by conversion push paths that cannot write
// their converted output directly into the ring.
const stagingSize = 64 * 1024

// cacheLinePad is the padding, in bytes, needed after an 8-byte atomic
// index to fill a 64-byte cache line and avoid false sharing between
// the producer's write_pos and the consumer's read_pos.
const cacheLinePad = 64 - 8

// paddedIndex is an atomic ring index padded to its own cache line.
type paddedIndex struct {
	v atomic.Uint64
	_ [cacheLinePad]byte
}

// S24Mode describes what has been learned so far about the alignment
// of 24-bit-in-32-bit samples arriving at Push24Packed.
type S24Mode int

const (
	S24Unknown S24Mode = iota
	S24LsbAligned
	S24MsbAligned
	S24Deferred
)

func (m S24Mode) String() string {
	switch m {
	case S24Unknown:
		return "unknown"
	case S24LsbAligned:
		return "lsb_aligned"
	case S24MsbAligned:
		return "msb_aligned"
	case S24Deferred:
		return "deferred"
	default:
		return "invalid"
	}
}

// deferredCommitThreshold is the number of consecutive silent samples
// after which S24 detection commits to a mode even
// without ever seeing a nonzero sample.
const deferredCommitThreshold = 48000

// s24State holds the S24 auto-detection state; owned by the ring, and
// touched only by the producer (the sole caller of Push24Packed).
type s24State struct {
	mode              S24Mode
	hint              S24Mode
	hasHint           bool
	confirmed         bool
	silentSampleCount int
}

func (s *s24State) reset() {
	*s = s24State{}
}

// applyHint applies a producer-supplied expected alignment. The
// hint is applied immediately if the current mode is unknown, and is
// overridden by any later confirmed sample-based detection.
func (s *s24State) applyHint(mode S24Mode) {
	s.hasHint = true
	s.hint = mode
	if s.mode == S24Unknown {
		s.mode = mode
	}
}

// detect runs the S24 auto-detection algorithm over up to the
// first 64 samples of src (each sample a 4-byte LSB/MSB-candidate
// container), updating s in place. It is a no-op once s.confirmed.
func (s *s24State) detect(src []byte) {
	if s.confirmed {
		return
	}
	n := len(src) / 4
	if n > 64 {
		n = 64
	}
	var byte0NonZero, byte3NonZero bool
	for i := 0; i < n; i++ {
		g := src[i*4 : i*4+4]
		if g[0] != 0 {
			byte0NonZero = true
		}
		if g[3] != 0 {
			byte3NonZero = true
		}
	}
	byte0AllZero := !byte0NonZero
	byte3AllZero := !byte3NonZero

	switch {
	case byte3AllZero && byte0NonZero:
		s.mode = S24LsbAligned
		s.confirmed = true
	case byte0AllZero && byte3NonZero:
		s.mode = S24MsbAligned
		s.confirmed = true
	case byte0AllZero && byte3AllZero:
		s.mode = S24Deferred
		s.silentSampleCount += n
		if s.silentSampleCount > deferredCommitThreshold {
			if s.hasHint {
				s.mode = s.hint
			} else {
				s.mode = S24LsbAligned
			}
			s.confirmed = true
		}
	default: // both nonzero.
		s.mode = S24LsbAligned
		s.confirmed = true
	}
}

// activeMode returns the S24 mode to use as the converter selector
// right now; S24Unknown/S24Deferred use the hinted alignment if one was
// given, and otherwise fall back to LSB-aligned.
func (s *s24State) activeMode() S24Mode {
	mode := s.mode
	if (mode == S24Unknown || mode == S24Deferred) && s.hasHint {
		mode = s.hint
	}
	if mode == S24MsbAligned {
		return S24MsbAligned
	}
	return S24LsbAligned
}

// Ring is a lock-free SPSC byte ring buffer with capacity always a
// power of two, one byte permanently reserved to distinguish full from
// empty.
type Ring struct {
	buf      []byte
	capacity uint64
	mask     uint64

	writePos paddedIndex
	readPos  paddedIndex

	silenceByte byte

	stagingPack  []byte
	stagingWiden []byte
	stagingDSD   []byte
	stagingDSDIn []byte

	s24 s24State
}

// nextPow2 rounds n up to the next power of two, with a floor of 2
// ("Rounds capacity up to power of two >= 2").
func nextPow2(n uint32) uint32 {
	if n <= 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

// New creates a Ring with at least capacity bytes of storage (rounded
// up to a power of two), filled with silenceByte.
func New(capacity uint32, silenceByte byte) *Ring {
	r := &Ring{
		stagingPack:  make([]byte, stagingSize),
		stagingWiden: make([]byte, stagingSize),
		stagingDSD:   make([]byte, stagingSize),
		stagingDSDIn: make([]byte, stagingSize),
	}
	r.Resize(capacity, silenceByte)
	return r
}

// Resize rounds newCapacity up to a power of two, fills the buffer
// with silenceByte, and resets the S24 detection state. Per
// invariant (d), the buffer is filled with silence before the indices
// are reset, so no torn samples are ever visible across a resize.
//
// Resize is not safe to call concurrently with Push*/Pop; callers must
// serialize it against the producer and consumer (sink.Controller's
// reconfiguration guard does this).
func (r *Ring) Resize(newCapacity uint32, silenceByte byte) {
	cap := uint64(nextPow2(newCapacity))
	buf := make([]byte, cap)
	for i := range buf {
		buf[i] = silenceByte
	}
	r.buf = buf
	r.capacity = cap
	r.mask = cap - 1
	r.silenceByte = silenceByte
	r.writePos.v.Store(0)
	r.readPos.v.Store(0)
	r.s24.reset()
}

// Clear resets the ring to empty, refilling it with its current
// silence byte, without changing capacity.
func (r *Ring) Clear() {
	for i := range r.buf {
		r.buf[i] = r.silenceByte
	}
	r.writePos.v.Store(0)
	r.readPos.v.Store(0)
	r.s24.reset()
}

// HintS24 supplies the producer's expected S24 alignment, applied
// immediately if no sample has been confirmed yet.
func (r *Ring) HintS24(mode S24Mode) {
	r.s24.applyHint(mode)
}

// S24State reports the current S24 detection mode and whether it has
// been confirmed, for diagnostics.
func (r *Ring) S24State() (mode S24Mode, confirmed bool) {
	return r.s24.mode, r.s24.confirmed
}

// Capacity returns the ring's current capacity in bytes.
func (r *Ring) Capacity() uint64 { return r.capacity }

// FreeSpace returns a conservative snapshot of the number of bytes
// currently free for writing. Intended for use by the producer.
func (r *Ring) FreeSpace() uint64 {
	w := r.writePos.v.Load()
	rp := r.readPos.v.Load()
	fill := (w - rp) & r.mask
	return r.capacity - 1 - fill
}

// Available returns a conservative snapshot of the number of bytes
// currently available for reading. Intended for use by the
// consumer.
func (r *Ring) Available() uint64 {
	w := r.writePos.v.Load()
	rp := r.readPos.v.Load()
	return (w - rp) & r.mask
}

// FillRatio returns Available()/Capacity() as a float in [0, 1), used
// by the producer's backpressure check.
func (r *Ring) FillRatio() float64 {
	return float64(r.Available()) / float64(r.capacity)
}

// DirectWriteRegion returns a contiguous writable slice of at least n
// bytes starting at the current write position, if the free space and
// distance to the wrap point both allow it. ok is false if direct
// writing isn't possible and the caller should fall back to Push.
func (r *Ring) DirectWriteRegion(n int) (region []byte, ok bool) {
	if uint64(n) > r.FreeSpace() {
		return nil, false
	}
	w := r.writePos.v.Load() & r.mask
	toWrap := r.capacity - w
	if uint64(n) > toWrap {
		return nil, false
	}
	return r.buf[w : w+uint64(n)], true
}

// CommitDirectWrite advances the write position by k bytes, release
// ordering, after the caller has filled the slice returned by
// DirectWriteRegion.
func (r *Ring) CommitDirectWrite(k int) {
	r.writePos.v.Add(uint64(k))
}

// Push copies as many bytes of data as fit (direct fast path, two-
// chunk wraparound fallback) and returns the number of bytes accepted;
// a request exceeding available free space is truncated, never
// rejected.
func (r *Ring) Push(data []byte) int {
	n := len(data)
	free := r.FreeSpace()
	if uint64(n) > free {
		n = int(free)
	}
	if n == 0 {
		return 0
	}
	if region, ok := r.DirectWriteRegion(n); ok {
		copy(region, data[:n])
		r.CommitDirectWrite(n)
		return n
	}
	w := r.writePos.v.Load() & r.mask
	first := r.capacity - w
	if uint64(n) < first {
		first = uint64(n)
	}
	copy(r.buf[w:w+first], data[:first])
	if uint64(n) > first {
		copy(r.buf[0:uint64(n)-first], data[first:n])
	}
	r.writePos.v.Add(uint64(n))
	return n
}

// Push24Packed runs S24 auto-detection on src (multiples of 4 input
// bytes per sample), selects the LSB- or MSB-aligned converter, and
// pushes the packed 3-byte-per-sample output into the ring. Returns
// the number of input bytes consumed (always a multiple of 4).
func (r *Ring) Push24Packed(src []byte) int {
	r.s24.detect(src)
	mode := r.s24.activeMode()

	maxSamples := len(src) / 4
	if m := len(r.stagingPack) / 3; m < maxSamples {
		maxSamples = m
	}
	if m := int(r.FreeSpace()) / 3; m < maxSamples {
		maxSamples = m
	}
	if maxSamples <= 0 {
		return 0
	}
	in := src[:maxSamples*4]
	var written int
	if mode == S24MsbAligned {
		written = convert.Pack24MSB(r.stagingPack, in)
	} else {
		written = convert.Pack24LSB(r.stagingPack, in)
	}
	r.Push(r.stagingPack[:written])
	return maxSamples * 4
}

// Push16To32 widens 16-bit LE samples in src to 32-bit containers and
// pushes them into the ring. Returns input bytes consumed.
func (r *Ring) Push16To32(src []byte) int {
	maxSamples := len(src) / 2
	if m := len(r.stagingWiden) / 4; m < maxSamples {
		maxSamples = m
	}
	if m := int(r.FreeSpace()) / 4; m < maxSamples {
		maxSamples = m
	}
	if maxSamples <= 0 {
		return 0
	}
	in := src[:maxSamples*2]
	written := convert.Widen16To32(r.stagingWiden, in)
	r.Push(r.stagingWiden[:written])
	return maxSamples * 2
}

// Push16To24 widens 16-bit LE samples in src to 24-bit containers and
// pushes them into the ring. Returns input bytes consumed.
func (r *Ring) Push16To24(src []byte) int {
	maxSamples := len(src) / 2
	if m := len(r.stagingWiden) / 3; m < maxSamples {
		maxSamples = m
	}
	if m := int(r.FreeSpace()) / 3; m < maxSamples {
		maxSamples = m
	}
	if maxSamples <= 0 {
		return 0
	}
	in := src[:maxSamples*2]
	written := convert.Widen16To24(r.stagingWiden, in)
	r.Push(r.stagingWiden[:written])
	return maxSamples * 2
}

// PushDSDPlanar aligns src to 4-byte-per-channel groups, runs the
// mode-specific DSD conversion into staging, and pushes the result
// into the ring. Returns input bytes consumed.
func (r *Ring) PushDSDPlanar(src []byte, channels int, mode convert.DSDMode) int {
	if channels <= 0 {
		return 0
	}
	perChannel := (len(src) / channels / 4) * 4

	maxGroupsByStaging := len(r.stagingDSD) / (4 * channels)
	maxGroupsByInStaging := len(r.stagingDSDIn) / (4 * channels)
	maxGroupsBySrc := perChannel / 4
	maxGroupsByFree := int(r.FreeSpace()) / (4 * channels)
	groups := maxGroupsBySrc
	if maxGroupsByStaging < groups {
		groups = maxGroupsByStaging
	}
	if maxGroupsByInStaging < groups {
		groups = maxGroupsByInStaging
	}
	if maxGroupsByFree < groups {
		groups = maxGroupsByFree
	}
	if groups <= 0 {
		return 0
	}
	consumedPerChannel := groups * 4
	in := r.stagingDSDIn[:consumedPerChannel*channels]
	for c := 0; c < channels; c++ {
		copy(in[c*consumedPerChannel:(c+1)*consumedPerChannel], src[c*perChannel:c*perChannel+consumedPerChannel])
	}
	written := convert.DSDPlanarToInterleaved(r.stagingDSD, in, channels, mode)
	r.Push(r.stagingDSD[:written])
	return consumedPerChannel * channels
}

// Pop copies up to n bytes of available data into dst (two-chunk
// wraparound copy) and advances the read position, release ordering.
// It returns the number of bytes actually copied, which may be less
// than n if fewer bytes are available.
func (r *Ring) Pop(dst []byte, n int) int {
	avail := r.Available()
	if uint64(n) > avail {
		n = int(avail)
	}
	if n > len(dst) {
		n = len(dst)
	}
	if n == 0 {
		return 0
	}
	rp := r.readPos.v.Load() & r.mask
	first := r.capacity - rp
	if uint64(n) < first {
		first = uint64(n)
	}
	copy(dst[0:first], r.buf[rp:rp+first])
	if uint64(n) > first {
		copy(dst[first:n], r.buf[0:uint64(n)-first])
	}
	r.readPos.v.Add(uint64(n))
	return n
}

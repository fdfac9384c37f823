/*
NAME
  logring.go

DESCRIPTION
  logring.go implements a bounded, lock-free SPSC ring of fixed-size log
  records, used from hot paths (the consumer callback and send_audio)
  that must never block on or allocate for logging.

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package logring provides a bounded async log ring: hot paths push
// fixed-size records without blocking, a drain goroutine pops them and
// forwards to a logging.Logger. Records are dropped silently when the
// ring is full, since a logging hiccup must never perturb the audio
// path.
package logring

import (
	"sync/atomic"
	"time"

	"github.com/ausocean/utils/logging"
)

// MessageLen is the maximum length, in bytes, of a log message body
// stored in a record; longer messages are truncated.
const MessageLen = 128

// DefaultCapacity is the default number of records the ring holds; the
// teacher's ring-sizing convention (device/alsa.go's rbLen) favours a
// small power-of-two count sized to a burst of hot-path log lines
// rather than a long history.
const DefaultCapacity = 1024

// Record is one fixed-size log-ring entry.
type Record struct {
	Time    time.Time
	Level   int8
	message [MessageLen]byte
	msgLen  int
}

// Message returns the record's message text.
func (r Record) Message() string { return string(r.message[:r.msgLen]) }

// Ring is a bounded SPSC ring of Records. It reuses the same
// acquire/release index discipline as ring.Ring (reusing the idea that
// the log ring is itself a ring buffer), specialized to fixed-size
// records instead of raw bytes.
type Ring struct {
	records  []Record
	mask     uint64
	writePos atomic.Uint64
	readPos  atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a Ring with capacity rounded up to a power of two.
func New(capacity int) *Ring {
	n := nextPow2(capacity)
	return &Ring{
		records: make([]Record, n),
		mask:    uint64(n) - 1,
	}
}

func nextPow2(n int) uint64 {
	if n <= 1 {
		return 1
	}
	v := uint64(n - 1)
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}

// Push appends a record without blocking. If the ring is full, the
// record is dropped silently and the drop counter is incremented; the
// hot-path caller never observes backpressure from logging.
func (r *Ring) Push(t time.Time, level int8, message string) {
	w := r.writePos.Load()
	rp := r.readPos.Load()
	if w-rp >= uint64(len(r.records)) {
		r.dropped.Add(1)
		return
	}
	rec := &r.records[w&r.mask]
	rec.Time = t
	rec.Level = level
	rec.msgLen = copy(rec.message[:], message)
	r.writePos.Add(1)
}

// Pop removes and returns the oldest record, if any.
func (r *Ring) Pop() (Record, bool) {
	rp := r.readPos.Load()
	w := r.writePos.Load()
	if rp == w {
		return Record{}, false
	}
	rec := r.records[rp&r.mask]
	r.readPos.Add(1)
	return rec, true
}

// Dropped returns the number of records dropped so far due to a full
// ring.
func (r *Ring) Dropped() uint64 { return r.dropped.Load() }

// Drain reads records from r as they arrive and forwards them to log,
// until stop is closed. It is intended to run as the dedicated "log
// drain" thread.
func Drain(r *Ring, log logging.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			drainRemaining(r, log)
			return
		case <-ticker.C:
			drainRemaining(r, log)
		}
	}
}

func drainRemaining(r *Ring, log logging.Logger) {
	for {
		rec, ok := r.Pop()
		if !ok {
			return
		}
		switch rec.Level {
		case logging.Debug:
			log.Debug(rec.Message())
		case logging.Info:
			log.Info(rec.Message())
		case logging.Warning:
			log.Warning(rec.Message())
		case logging.Error:
			log.Error(rec.Message())
		default:
			log.Info(rec.Message())
		}
	}
}

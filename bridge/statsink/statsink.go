/*
NAME
  statsink.go

DESCRIPTION
  statsink.go implements Sink, a session-end diagnostic aggregator:
  underrun count, frames delivered, format-change count and per-
  transition timing, buffered through a pool.Buffer the way
  revid/senders.go buffers outgoing media chunks, and logged once at
  session close (the rule "logged once at session
  end, not per-occurrence").

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package statsink aggregates per-session bridge diagnostics without
// adding logging overhead to the producer/consumer hot paths: events
// are written to a pooled chunk buffer and only parsed and summarised
// once, when the session ends.
package statsink

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/sqfbridge/sink"
	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"
)

const (
	eventUnderrun     = "U"
	eventFramesOut    = "F"
	eventFormatChange = "C"
	poolStartElemSize = 64
	poolElementCount  = 1024
	poolWriteTimeout  = time.Second
	drainReadTimeout  = 10 * time.Millisecond
)

// Summary is the aggregated result of one session, logged once at
// Close.
type Summary struct {
	Underruns       int
	FramesDelivered int64
	FormatChanges   int
	TotalSwitchTime time.Duration
}

// Sink buffers diagnostic events through a pool.Buffer and produces a
// Summary on demand.
type Sink struct {
	log logging.Logger
	buf *pool.Buffer
}

// New returns a Sink backed by a fresh pool.Buffer, sized the way
// revid's senders size theirs: a modest starting element size that
// grows to accommodate whatever is written.
func New(log logging.Logger) *Sink {
	return &Sink{
		log: log,
		buf: pool.NewBuffer(poolStartElemSize, poolElementCount, poolWriteTimeout),
	}
}

// RecordUnderrun records one ring underrun (the tick empty-buffer case).
func (s *Sink) RecordUnderrun() {
	s.write(eventUnderrun)
}

// RecordFramesDelivered records n frames successfully popped from the
// ring in one tick.
func (s *Sink) RecordFramesDelivered(n int) {
	s.write(eventFramesOut + ":" + strconv.Itoa(n))
}

// RecordFormatChange records one sink reconfiguration and the delay
// TransitionDelay computed for it.
func (s *Sink) RecordFormatChange(kind sink.TransitionKind, delay time.Duration) {
	s.write(fmt.Sprintf("%s:%d:%d", eventFormatChange, int(kind), delay.Microseconds()))
}

func (s *Sink) write(line string) {
	if _, err := s.buf.Write([]byte(line)); err != nil {
		s.log.Warning("statsink: write failed", "error", err)
	}
}

// Summarize drains every buffered event and returns the aggregate. It
// is safe to call once at session end; buffered writes made after
// Summarize returns are not reflected in it.
func (s *Sink) Summarize() Summary {
	var sum Summary
	for {
		chunk, err := s.buf.Next(drainReadTimeout)
		if err != nil {
			if err == pool.ErrTimeout {
				break
			}
			s.log.Warning("statsink: drain failed", "error", err)
			break
		}
		parseEvent(chunk.Bytes(), &sum)
		chunk.Close()
	}
	return sum
}

func parseEvent(b []byte, sum *Summary) {
	fields := strings.Split(string(b), ":")
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case eventUnderrun:
		sum.Underruns++
	case eventFramesOut:
		if len(fields) < 2 {
			return
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err == nil {
			sum.FramesDelivered += n
		}
	case eventFormatChange:
		if len(fields) < 3 {
			return
		}
		sum.FormatChanges++
		us, err := strconv.ParseInt(fields[2], 10, 64)
		if err == nil {
			sum.TotalSwitchTime += time.Duration(us) * time.Microsecond
		}
	}
}

// Close summarizes every buffered event and logs the result once,
// then releases the underlying pool.Buffer.
func (s *Sink) Close() {
	sum := s.Summarize()
	s.log.Info("bridge: session summary",
		"underruns", sum.Underruns,
		"frames_delivered", sum.FramesDelivered,
		"format_changes", sum.FormatChanges,
		"total_switch_time", sum.TotalSwitchTime)
	s.buf.Flush()
}

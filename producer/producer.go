/*
NAME
  producer.go

DESCRIPTION
  producer.go implements Loop, the producer thread that reads the
  upstream decoder's format-tagged byte stream, detects format changes
  and drives the sink's reconfiguration, and routes audio into the
  ring at wire rate.

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package producer implements the upstream-facing half of the bridge:
// it demuxes the decoder pipe's in-band format headers, drives
// sink.Controller through format changes, and feeds audio into the
// ring either at burst rate (immediately after a reopen, to rebuild
// prefill) or at steady state (paced by the ring's own backpressure).
package producer

import (
	"io"
	"time"

	"github.com/ausocean/sqfbridge/audioformat"
	"github.com/ausocean/sqfbridge/convert"
	"github.com/ausocean/sqfbridge/pipeio"
	"github.com/ausocean/sqfbridge/sink"
	"github.com/ausocean/utils/logging"
)

// burstFillTimeout bounds how long burst-fill will keep pulling audio
// without rate pacing before giving up and falling back to steady
// state regardless of prefill progress.
const burstFillTimeout = 5 * time.Second

// backpressureThreshold is the ring fill ratio above which the
// steady-state loop waits for the consumer to free space rather than
// pushing unboundedly.
const backpressureThreshold = 0.75

// backpressureWait bounds each wait for the consumer's free-space
// notification during steady state.
const backpressureWait = 50 * time.Millisecond

// Loop reads audio from a PipeReader, classifies format changes via
// the embedded wire header, and feeds sink.Controller. It owns no
// goroutines of its own; Run blocks the calling goroutine until the
// pipe closes, a fatal desync is detected, or shutdown is requested.
type Loop struct {
	pipe *pipeio.PipeReader
	ctrl *sink.Controller
	log  logging.Logger

	hasFormat bool
	current   audioformat.AudioFormat

	// scratch holds planar DSD samples extracted or de-interleaved
	// from a window of interleaved input, reused across calls to
	// avoid an allocation per window.
	scratch []byte
}

// New returns a Loop reading from pipe and driving ctrl.
func New(pipe *pipeio.PipeReader, ctrl *sink.Controller, log logging.Logger) *Loop {
	return &Loop{
		pipe:    pipe,
		ctrl:    ctrl,
		log:     log,
		scratch: make([]byte, pipeio.WindowSize),
	}
}

// Run drives the producer loop until the pipe returns an error (most
// commonly io.EOF on decoder exit) or the controller requests
// shutdown. A clean pipe close returns io.EOF; a nil return means
// shutdown was requested.
func (l *Loop) Run() error {
	for {
		if l.ctrl.StopRequested() {
			return nil
		}

		header, err := l.readHeader()
		if err != nil {
			return err
		}

		format := header.ToAudioFormat()
		if !l.hasFormat || !format.Equal(l.current) {
			if err := l.ctrl.Open(format); err != nil {
				l.log.Error("producer: sink open failed", "format", format, "error", err)
			}
			l.hasFormat = true
			l.current = format

			if err := l.burstFill(header, format); err != nil {
				return err
			}
		}

		if err := l.steadyState(header, format); err != nil {
			return err
		}
	}
}

// readHeader blocks for exactly one wire header and parses it. A
// magic mismatch means the stream has desynchronised with the
// decoder's framing and is unrecoverable.
func (l *Loop) readHeader() (audioformat.FormatHeader, error) {
	raw, err := l.pipe.ReadExact(audioformat.HeaderSize)
	if err != nil {
		return audioformat.FormatHeader{}, err
	}
	h, err := audioformat.ParseHeader(raw)
	if err != nil {
		return audioformat.FormatHeader{}, err
	}
	return h, nil
}

// burstFill pulls audio as fast as the pipe will give it, without rate
// pacing, so the newly (re)opened sink can rebuild its prefill target
// quickly. It stops as soon as the next header is visible on the
// stream, on shutdown, or after burstFillTimeout, whichever comes
// first.
func (l *Loop) burstFill(header audioformat.FormatHeader, format audioformat.AudioFormat) error {
	deadline := time.Now().Add(burstFillTimeout)
	for {
		if l.ctrl.StopRequested() {
			return nil
		}

		peeked, err := l.pipe.Peek(pipeio.MagicLen)
		if err == nil && audioformat.HasMagic(peeked) {
			return nil
		}

		if time.Now().After(deadline) {
			l.log.Warning("producer: burst-fill timed out before prefill completed", "format", format)
			return nil
		}

		chunk, err := l.pipe.ReadUpTo(pipeio.WindowSize)
		if len(chunk) > 0 {
			l.route(header, format, chunk)
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return err
			}
			if len(chunk) == 0 {
				return err
			}
		}
	}
}

// steadyState streams audio at the rate the pipe delivers it,
// applying backpressure against the ring rather than burst-filling,
// until the next header appears on the stream (detected via Peek
// between reads) or an error terminates the pipe. Backpressure only
// engages once prefill is complete: waiting on ring fill beforehand
// would stall the fill it is trying to build.
func (l *Loop) steadyState(header audioformat.FormatHeader, format audioformat.AudioFormat) error {
	for {
		if l.ctrl.StopRequested() {
			return nil
		}

		peeked, err := l.pipe.Peek(pipeio.MagicLen)
		if err == nil && audioformat.HasMagic(peeked) {
			return nil
		}

		if l.ctrl.PrefillComplete() && l.ctrl.Ring() != nil && l.ctrl.Ring().FillRatio() > backpressureThreshold {
			l.ctrl.WaitForSpace(backpressureWait)
			continue
		}

		chunk, err := l.pipe.ReadUpTo(pipeio.WindowSize)
		if len(chunk) > 0 {
			l.route(header, format, chunk)
		}
		if err != nil {
			if len(chunk) == 0 {
				return err
			}
		}
	}
}

// route pushes chunk into the sink, converting it from the wire
// layout the header describes into the planar form PushAudio expects
// for DSD carriers.
func (l *Loop) route(header audioformat.FormatHeader, format audioformat.AudioFormat, chunk []byte) {
	channels := int(format.Channels)
	if channels == 0 {
		return
	}

	if !format.IsDSD {
		l.ctrl.PushAudio(chunk)
		return
	}

	if header.IsDoP() {
		need := (len(chunk) / (4 * channels)) * (2 * channels)
		if need == 0 {
			return
		}
		if cap(l.scratch) < need {
			l.scratch = make([]byte, need)
		}
		n := convert.ExtractDoPPlanar(l.scratch[:need], chunk, channels)
		l.ctrl.PushAudio(l.scratch[:n])
		return
	}

	// Native DSD: de-interleave with the decoder's mandatory 4-byte
	// reversal into planar form.
	need := (len(chunk) / (4 * channels)) * (4 * channels)
	if need == 0 {
		return
	}
	if cap(l.scratch) < need {
		l.scratch = make([]byte, need)
	}
	n := convert.DeinterleaveNativeDSD(l.scratch[:need], chunk, channels)
	l.ctrl.PushAudio(l.scratch[:n])
}

/*
NAME
  pipeio.go

DESCRIPTION
  pipeio.go implements PipeReader, a buffered byte source wrapping the
  upstream decoder's pipe, providing read_exact, peek and
  read_up_to_next_header semantics.

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pipeio provides a buffered byte source for the upstream
// decoder's pipe, including header-magic-aware bounded reads that
// ensure audio bytes never subsume an embedded format header.
package pipeio

import (
	"io"
)

// WindowSize is the size of PipeReader's internal buffering window.
const WindowSize = 64 * 1024

// MagicLen is the length, in bytes, of the header magic PipeReader
// scans for in ReadUpTo.
const MagicLen = 4

// PipeReader wraps a blocking byte source (typically the stdout pipe
// of the upstream decoder subprocess) behind a bounded internal
// window, so reads can be exact-sized, peeked without consuming, or
// bounded-but-safe around an embedded format header.
type PipeReader struct {
	r      io.Reader
	magic  [MagicLen]byte
	window []byte // window[pos:len(window)] holds unconsumed buffered bytes.
	pos    int
}

// New wraps r, scanning for the given 4-byte magic in ReadUpTo.
func New(r io.Reader, magic [MagicLen]byte) *PipeReader {
	return &PipeReader{
		r:      r,
		magic:  magic,
		window: make([]byte, 0, WindowSize),
	}
}

// buffered returns the number of unconsumed bytes currently held in
// the window.
func (p *PipeReader) buffered() int { return len(p.window) - p.pos }

// compact moves any unconsumed bytes to the start of the window's
// backing array, so further reads have room to grow the window.
func (p *PipeReader) compact() {
	if p.pos == 0 {
		return
	}
	n := copy(p.window[:buffLen(p.window, p.pos)], p.window[p.pos:])
	p.window = p.window[:n]
	p.pos = 0
}

func buffLen(window []byte, pos int) int { return len(window) - pos }

// fill reads more bytes from the underlying source into the window
// until at least want bytes are buffered or the source returns an
// error (including io.EOF). It returns the error from the underlying
// Read, if any; a nil error means want bytes are now available.
func (p *PipeReader) fill(want int) error {
	p.compact()
	for buffLen(p.window, p.pos) < want {
		if cap(p.window) < len(p.window)+WindowSize {
			grown := make([]byte, len(p.window), len(p.window)+WindowSize)
			copy(grown, p.window)
			p.window = grown
		}
		readInto := p.window[len(p.window):cap(p.window)]
		if len(readInto) > WindowSize {
			readInto = readInto[:WindowSize]
		}
		n, err := p.r.Read(readInto)
		p.window = p.window[:len(p.window)+n]
		if n == 0 && err != nil {
			return err
		}
		if n == 0 {
			continue
		}
	}
	return nil
}

// ReadExact returns exactly n bytes, blocking as needed. If the
// underlying source terminates (io.EOF or any other error) before n
// bytes are available, it returns the bytes read so far (which may be
// fewer than n) along with that error.
func (p *PipeReader) ReadExact(n int) ([]byte, error) {
	err := p.fill(n)
	avail := p.buffered()
	if avail > n {
		avail = n
	}
	out := make([]byte, avail)
	copy(out, p.window[p.pos:p.pos+avail])
	p.pos += avail
	if avail < n && err == nil {
		err = io.ErrUnexpectedEOF
	}
	return out, err
}

// Peek returns up to n bytes without consuming them, compacting and
// refilling the window if necessary. It returns fewer than n bytes
// only at end of stream.
func (p *PipeReader) Peek(n int) ([]byte, error) {
	err := p.fill(n)
	avail := p.buffered()
	if avail > n {
		avail = n
	}
	return p.window[p.pos : p.pos+avail], err
}

// ReadUpTo returns 1..=max bytes from the stream, consuming them. If
// the returned span (read starting at offset 1, since the caller is
// expected to have just Peeked and confirmed the window does not start
// with the header magic) contains the magic at offset i, the span is
// truncated to i bytes so audio data never subsumes an embedded header
// (the critical contract here).
func (p *PipeReader) ReadUpTo(max int) ([]byte, error) {
	if max <= 0 {
		return nil, nil
	}
	err := p.fill(max)
	avail := p.buffered()
	if avail > max {
		avail = max
	}
	if avail == 0 {
		return nil, err
	}
	span := p.window[p.pos : p.pos+avail]
	if i := indexMagicFrom1(span, p.magic); i >= 0 {
		span = span[:i]
	}
	out := make([]byte, len(span))
	copy(out, span)
	p.pos += len(out)
	if len(out) == 0 {
		return out, err
	}
	return out, nil
}

// indexMagicFrom1 scans span for magic starting at offset 1 (offset 0
// is excluded here, since the caller has already verified via Peek
// that the window does not start with a header) and returns the
// offset of the first match, or -1 if none is found.
func indexMagicFrom1(span []byte, magic [MagicLen]byte) int {
	if len(span) < 1+MagicLen {
		return -1
	}
	for i := 1; i+MagicLen <= len(span); i++ {
		if span[i] == magic[0] && span[i+1] == magic[1] && span[i+2] == magic[2] && span[i+3] == magic[3] {
			return i
		}
	}
	return -1
}

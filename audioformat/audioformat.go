/*
NAME
  audioformat.go

DESCRIPTION
  audioformat.go defines AudioFormat, the value type describing the PCM
  or DSD stream currently flowing through the bridge, and FormatHeader,
  the 16-byte wire encoding of that format read from the upstream
  decoder pipe.

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package audioformat provides the AudioFormat value type and the
// FormatHeader wire parser used to recognise it on the upstream pipe.
package audioformat

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// HeaderSize is the fixed size in bytes of a FormatHeader as it appears
// on the wire.
const HeaderSize = 16

// Magic is the 4-byte ASCII marker that opens every FormatHeader.
var Magic = [4]byte{'S', 'Q', 'F', 'H'}

// headerVersion is the only version this parser understands.
const headerVersion = 0x01

// DSD format byte values, offset 7 of the wire header.
const (
	dsdFormatPCM      = 0
	dsdFormatDoP      = 1
	dsdFormatNativeLE = 2
	dsdFormatNativeBE = 3
)

// Endianness describes how a DSD source packs its bitstream.
type Endianness uint8

const (
	// DSFLSB is the bit ordering used by DSF files: LSB-first.
	DSFLSB Endianness = iota
	// DFFMSB is the bit ordering used by DFF files: MSB-first.
	DFFMSB
)

func (e Endianness) String() string {
	switch e {
	case DSFLSB:
		return "DSF_LSB"
	case DFFMSB:
		return "DFF_MSB"
	default:
		return "unknown"
	}
}

// AudioFormat describes the format of the audio samples currently being
// produced by the upstream decoder. It is immutable once built and is
// rebuilt from scratch on every FormatHeader.
//
// For DSD streams, SampleRate is the 1-bit rate (e.g. 22579200 for
// DSD512) and BitDepth is always 1. For PCM, SampleRate is the frame
// rate and BitDepth is 16, 24 or 32.
type AudioFormat struct {
	SampleRate    uint32
	BitDepth      uint8
	Channels      uint8
	IsDSD         bool
	IsCompressed  bool
	DSDEndianness Endianness
}

// Equal reports whether f and g describe the same stream, ignoring
// IsCompressed.
func (f AudioFormat) Equal(g AudioFormat) bool {
	return f.SampleRate == g.SampleRate &&
		f.BitDepth == g.BitDepth &&
		f.Channels == g.Channels &&
		f.IsDSD == g.IsDSD &&
		(!f.IsDSD || f.DSDEndianness == g.DSDEndianness)
}

// ClockFamily identifies which master clock a rate derives from.
type ClockFamily int

const (
	// ClockNone is used when a rate divides evenly by neither 44100 nor 48000.
	ClockNone ClockFamily = iota
	ClockFamily441
	ClockFamily48
)

// ClockFamily classifies f's sample rate per the transition classifier.
func (f AudioFormat) ClockFamily() ClockFamily {
	switch {
	case f.SampleRate%44100 == 0:
		return ClockFamily441
	case f.SampleRate%48000 == 0:
		return ClockFamily48
	default:
		return ClockNone
	}
}

// High-rate thresholds. bridge/config exposes
// tunable overrides of these defaults (see SPEC_FULL.md Part E).
const (
	DefaultHighRatePCMHz = 176400
	DefaultHighRateDSDHz = 11289600
)

// IsHighRate reports whether f is "high-rate", using the given
// thresholds (in Hz) for PCM and DSD respectively.
func (f AudioFormat) IsHighRate(pcmThreshold, dsdThreshold uint32) bool {
	if f.IsDSD {
		return f.SampleRate >= dsdThreshold
	}
	return f.SampleRate >= pcmThreshold
}

// DSDMultiplier returns the DSD rate expressed as a multiple of the
// DSD64 base rate (2822400 Hz), rounded to the nearest integer. For PCM
// formats it returns 0.
func (f AudioFormat) DSDMultiplier() int {
	if !f.IsDSD {
		return 0
	}
	const dsd64 = 2822400
	m := int(f.SampleRate+dsd64/2) / dsd64
	if m < 1 {
		m = 1
	}
	return m
}

// BytesPerFrame returns the number of bytes occupied by one frame
// (one sample per channel) of f at its native bit depth.
func (f AudioFormat) BytesPerFrame() int {
	bits := int(f.BitDepth)
	bytesPerSample := (bits + 7) / 8
	return bytesPerSample * int(f.Channels)
}

// FormatHeader is the parsed form of the 16-byte wire header described
// on the wire.
type FormatHeader struct {
	Version   uint8
	Channels  uint8
	BitDepth  uint8
	DSDFormat uint8
	Rate      uint32
}

// ParseHeader parses exactly HeaderSize bytes of b into a FormatHeader.
// It returns an error if the magic does not match exactly; every other
// field is accepted as given.
func ParseHeader(b []byte) (FormatHeader, error) {
	var h FormatHeader
	if len(b) < HeaderSize {
		return h, errors.Errorf("audioformat: short header, got %d want %d bytes", len(b), HeaderSize)
	}
	if b[0] != Magic[0] || b[1] != Magic[1] || b[2] != Magic[2] || b[3] != Magic[3] {
		return h, errors.Errorf("audioformat: bad magic %q", b[0:4])
	}
	h.Version = b[4]
	h.Channels = b[5]
	h.BitDepth = b[6]
	h.DSDFormat = b[7]
	h.Rate = binary.LittleEndian.Uint32(b[8:12])
	return h, nil
}

// HasMagic reports whether b starts with the FormatHeader magic. b may
// be shorter than HeaderSize; only the magic's 4 bytes are examined.
func HasMagic(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	return b[0] == Magic[0] && b[1] == Magic[1] && b[2] == Magic[2] && b[3] == Magic[3]
}

// ToAudioFormat converts a parsed FormatHeader into an AudioFormat, per
// the rate-scaling rules:
// native DSD multiplies the header rate by 32, DoP multiplies it by 16,
// and PCM passes the rate through unchanged.
func (h FormatHeader) ToAudioFormat() AudioFormat {
	f := AudioFormat{
		Channels: h.Channels,
		BitDepth: h.BitDepth,
	}
	switch h.DSDFormat {
	case dsdFormatPCM:
		f.SampleRate = h.Rate
	case dsdFormatDoP:
		f.SampleRate = h.Rate * 16
		f.IsDSD = true
		f.BitDepth = 1
		f.DSDEndianness = DSFLSB
	case dsdFormatNativeLE:
		f.SampleRate = h.Rate * 32
		f.IsDSD = true
		f.BitDepth = 1
		f.DSDEndianness = DSFLSB
	case dsdFormatNativeBE:
		f.SampleRate = h.Rate * 32
		f.IsDSD = true
		f.BitDepth = 1
		f.DSDEndianness = DFFMSB
	}
	return f
}

// IsDoP reports whether h describes a DSD-over-PCM carrier.
func (h FormatHeader) IsDoP() bool { return h.DSDFormat == dsdFormatDoP }

// IsNativeDSD reports whether h describes native (non-DoP) DSD, and if
// so whether the source is MSB-first.
func (h FormatHeader) IsNativeDSD() (native bool, msbFirst bool) {
	switch h.DSDFormat {
	case dsdFormatNativeLE:
		return true, false
	case dsdFormatNativeBE:
		return true, true
	default:
		return false, false
	}
}

// Validate checks that h has an understood version. Unknown versions
// are not fatal per se (only the magic mismatch is)
// but callers that want strict behaviour may use this.
func (h FormatHeader) Validate() error {
	if h.Version != headerVersion {
		return errors.Errorf("audioformat: unsupported header version %d", h.Version)
	}
	return nil
}

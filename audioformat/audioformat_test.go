package audioformat

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func makeHeader(channels, bitDepth, dsdFormat byte, rate uint32) []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:4], Magic[:])
	b[4] = headerVersion
	b[5] = channels
	b[6] = bitDepth
	b[7] = dsdFormat
	binary.LittleEndian.PutUint32(b[8:12], rate)
	return b
}

func TestParseHeaderBadMagic(t *testing.T) {
	b := makeHeader(2, 24, dsdFormatPCM, 48000)
	b[0] = 'X'
	if _, err := ParseHeader(b); err == nil {
		t.Fatal("expected error for bad magic, got nil")
	}
}

func TestParseHeaderShort(t *testing.T) {
	if _, err := ParseHeader(make([]byte, 4)); err == nil {
		t.Fatal("expected error for short header, got nil")
	}
}

func TestParseHeaderPCM(t *testing.T) {
	b := makeHeader(2, 24, dsdFormatPCM, 48000)
	h, err := ParseHeader(b)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	want := FormatHeader{Version: 1, Channels: 2, BitDepth: 24, DSDFormat: dsdFormatPCM, Rate: 48000}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Fatalf("ParseHeader mismatch (-want +got):\n%s", diff)
	}
	f := h.ToAudioFormat()
	if f.SampleRate != 48000 || f.IsDSD {
		t.Fatalf("unexpected PCM format: %+v", f)
	}
}

// TestRateScalingProperty exercises the rate-scaling invariant: a header
// of rate R produces AudioFormat{SampleRate = R*32} for native DSD,
// R*16 for DoP, and R unchanged otherwise.
func TestRateScalingProperty(t *testing.T) {
	cases := []struct {
		name      string
		dsdFormat byte
		rate      uint32
		wantRate  uint32
		wantDSD   bool
	}{
		{"pcm", dsdFormatPCM, 44100, 44100, false},
		{"dop", dsdFormatDoP, 176400, 176400 * 16, true},
		{"native_le", dsdFormatNativeLE, 705600, 705600 * 32, true},
		{"native_be", dsdFormatNativeBE, 2822400, 2822400 * 32, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h, err := ParseHeader(makeHeader(2, 24, c.dsdFormat, c.rate))
			if err != nil {
				t.Fatalf("ParseHeader: %v", err)
			}
			f := h.ToAudioFormat()
			if f.SampleRate != c.wantRate {
				t.Errorf("SampleRate = %d, want %d", f.SampleRate, c.wantRate)
			}
			if f.IsDSD != c.wantDSD {
				t.Errorf("IsDSD = %v, want %v", f.IsDSD, c.wantDSD)
			}
		})
	}
}

func TestEqualIgnoresCompressed(t *testing.T) {
	a := AudioFormat{SampleRate: 48000, BitDepth: 24, Channels: 2, IsCompressed: true}
	b := AudioFormat{SampleRate: 48000, BitDepth: 24, Channels: 2, IsCompressed: false}
	if !a.Equal(b) {
		t.Fatal("Equal should ignore IsCompressed")
	}
}

func TestClockFamily(t *testing.T) {
	cases := []struct {
		rate uint32
		want ClockFamily
	}{
		{44100, ClockFamily441},
		{88200, ClockFamily441},
		{48000, ClockFamily48},
		{96000, ClockFamily48},
		{45000, ClockNone},
	}
	for _, c := range cases {
		f := AudioFormat{SampleRate: c.rate}
		if got := f.ClockFamily(); got != c.want {
			t.Errorf("ClockFamily(%d) = %v, want %v", c.rate, got, c.want)
		}
	}
}

func TestIsHighRate(t *testing.T) {
	pcm := AudioFormat{SampleRate: 176400}
	if !pcm.IsHighRate(DefaultHighRatePCMHz, DefaultHighRateDSDHz) {
		t.Error("176400 Hz PCM should be high-rate")
	}
	dsd := AudioFormat{SampleRate: 11289600, IsDSD: true}
	if !dsd.IsHighRate(DefaultHighRatePCMHz, DefaultHighRateDSDHz) {
		t.Error("DSD256 should be high-rate")
	}
	low := AudioFormat{SampleRate: 48000}
	if low.IsHighRate(DefaultHighRatePCMHz, DefaultHighRateDSDHz) {
		t.Error("48000 Hz PCM should not be high-rate")
	}
}

func TestHasMagic(t *testing.T) {
	if !HasMagic([]byte("SQFH")) {
		t.Error("HasMagic should match exact magic")
	}
	if HasMagic([]byte("SQFX")) {
		t.Error("HasMagic should not match near-miss")
	}
	if HasMagic([]byte("SQ")) {
		t.Error("HasMagic should reject short input")
	}
}

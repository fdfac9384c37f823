package sink

import (
	"testing"
	"time"

	"github.com/ausocean/sqfbridge/audioformat"
)

func pcmFmt(rate uint32, bits, channels uint8) audioformat.AudioFormat {
	return audioformat.AudioFormat{SampleRate: rate, BitDepth: bits, Channels: channels}
}

func dsdFmt(rate uint32, channels uint8, end audioformat.Endianness) audioformat.AudioFormat {
	return audioformat.AudioFormat{SampleRate: rate, BitDepth: 1, Channels: channels, IsDSD: true, DSDEndianness: end}
}

func TestClassifyTransitionNoPrevious(t *testing.T) {
	got := ClassifyTransition(audioformat.AudioFormat{}, false, pcmFmt(48000, 24, 2), 176400, 11289600)
	if got != TransitionFullConnect {
		t.Fatalf("got %v, want TransitionFullConnect", got)
	}
}

func TestClassifyTransitionSameFormat(t *testing.T) {
	f := pcmFmt(48000, 24, 2)
	got := ClassifyTransition(f, true, f, 176400, 11289600)
	if got != TransitionQuickResume {
		t.Fatalf("got %v, want TransitionQuickResume", got)
	}
}

func TestClassifyTransitionDSDToPCM(t *testing.T) {
	prev := dsdFmt(2822400, 2, audioformat.DSFLSB)
	next := pcmFmt(176400, 24, 2)
	got := ClassifyTransition(prev, true, next, 176400, 11289600)
	if got != TransitionDSDChange {
		t.Fatalf("got %v, want TransitionDSDChange", got)
	}
}

func TestClassifyTransitionDSDRateChange(t *testing.T) {
	prev := dsdFmt(2822400, 2, audioformat.DSFLSB)
	next := dsdFmt(5644800, 2, audioformat.DSFLSB)
	got := ClassifyTransition(prev, true, next, 176400, 11289600)
	if got != TransitionDSDChange {
		t.Fatalf("got %v, want TransitionDSDChange", got)
	}
}

func TestClassifyTransitionPCMRateChange(t *testing.T) {
	prev := pcmFmt(44100, 24, 2)
	next := pcmFmt(48000, 24, 2)
	got := ClassifyTransition(prev, true, next, 176400, 11289600)
	if got != TransitionPCMRateChange {
		t.Fatalf("got %v, want TransitionPCMRateChange", got)
	}
}

func TestClassifyTransitionPCMToDSDHighRateSameFamily(t *testing.T) {
	prev := pcmFmt(176400, 24, 2) // 44.1kHz family, high-rate
	next := dsdFmt(11289600, 2, audioformat.DSFLSB)
	got := ClassifyTransition(prev, true, next, 176400, 11289600)
	if got != TransitionHighRateClockFamily {
		t.Fatalf("got %v, want TransitionHighRateClockFamily", got)
	}
}

func TestClassifyTransitionPCMToDSDLightweight(t *testing.T) {
	prev := pcmFmt(48000, 24, 2) // not high-rate
	next := dsdFmt(2822400, 2, audioformat.DSFLSB)
	got := ClassifyTransition(prev, true, next, 176400, 11289600)
	if got != TransitionLightweightReopen {
		t.Fatalf("got %v, want TransitionLightweightReopen", got)
	}
}

func TestClassifyTransitionGenericReopen(t *testing.T) {
	prev := dsdFmt(2822400, 2, audioformat.DSFLSB)
	next := dsdFmt(2822400, 4, audioformat.DSFLSB) // channel count change, same rate
	got := ClassifyTransition(prev, true, next, 176400, 11289600)
	if got != TransitionGenericReopen {
		t.Fatalf("got %v, want TransitionGenericReopen", got)
	}
}

func TestClassifyTransitionDeterministic(t *testing.T) {
	// Property 3: the classifier is a pure function of its inputs.
	prev := pcmFmt(44100, 24, 2)
	next := pcmFmt(88200, 24, 2)
	a := ClassifyTransition(prev, true, next, 176400, 11289600)
	b := ClassifyTransition(prev, true, next, 176400, 11289600)
	if a != b {
		t.Fatalf("classifier not deterministic: %v != %v", a, b)
	}
}

func TestTransitionDelayDSDChangeToHighRatePCM(t *testing.T) {
	prev := dsdFmt(2822400, 2, audioformat.DSFLSB) // DSD64, mult=1
	next := pcmFmt(352800, 24, 2)                  // >= 176400
	got := TransitionDelay(TransitionDSDChange, prev, next, 100*time.Millisecond)
	want := 200*time.Millisecond + 100*time.Millisecond*8 // 352800/44100 = 8
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTransitionDelayPCMRateChange(t *testing.T) {
	got := TransitionDelay(TransitionPCMRateChange, pcmFmt(44100, 24, 2), pcmFmt(48000, 24, 2), 0)
	if got != 100*time.Millisecond {
		t.Fatalf("got %v, want 100ms", got)
	}
}

func TestTransitionDelayHighRateClockFamily(t *testing.T) {
	next := dsdFmt(11289600, 2, audioformat.DSFLSB) // DSD256, mult=4
	got := TransitionDelay(TransitionHighRateClockFamily, pcmFmt(176400, 24, 2), next, 0)
	if got != 200*4*time.Millisecond {
		t.Fatalf("got %v, want 800ms", got)
	}
}

func TestTransitionDelayLightweightUsesConfigured(t *testing.T) {
	got := TransitionDelay(TransitionLightweightReopen, pcmFmt(48000, 24, 2), dsdFmt(2822400, 2, audioformat.DSFLSB), 123*time.Millisecond)
	if got != 123*time.Millisecond {
		t.Fatalf("got %v, want 123ms", got)
	}
}

func TestRequiresFullReopen(t *testing.T) {
	cases := map[TransitionKind]bool{
		TransitionFullConnect:         true,
		TransitionQuickResume:        false,
		TransitionDSDChange:          true,
		TransitionPCMRateChange:      true,
		TransitionHighRateClockFamily: true,
		TransitionLightweightReopen:  false,
		TransitionGenericReopen:      true,
	}
	for kind, want := range cases {
		if got := kind.RequiresFullReopen(); got != want {
			t.Errorf("%v.RequiresFullReopen() = %v, want %v", kind, got, want)
		}
	}
}

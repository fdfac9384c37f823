/*
NAME
  transition.go

DESCRIPTION
  transition.go implements the format-transition classifier and its
  associated inter-format delay calculation.

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package sink

import (
	"time"

	"github.com/ausocean/sqfbridge/audioformat"
)

// TransitionKind classifies a format change per the transition
// classifier.
type TransitionKind int

const (
	// TransitionFullConnect is case 1: no previous open.
	TransitionFullConnect TransitionKind = iota
	// TransitionQuickResume is case 2: identical format.
	TransitionQuickResume
	// TransitionDSDChange is case 3: DSD->PCM, or any DSD rate change.
	TransitionDSDChange
	// TransitionPCMRateChange is case 4: PCM->PCM, different rate.
	TransitionPCMRateChange
	// TransitionHighRateClockFamily is case 5: PCM->DSD, same clock
	// family, either side high-rate.
	TransitionHighRateClockFamily
	// TransitionLightweightReopen is case 6: PCM->DSD, otherwise.
	TransitionLightweightReopen
	// TransitionGenericReopen covers any remaining transition not
	// named by cases 1-6 (e.g. a channel-count change at a fixed DSD
	// rate); treated as a full close/reopen with a flat delay, the
	// same conservative default as case 4.
	TransitionGenericReopen
)

// ClassifyTransition is a deterministic, pure function of its inputs.
// Besides is_dsd, sample_rate, clock_family and high_rate of prev and
// next, it depends, through AudioFormat.Equal, on bit depth, channel
// count and DSD endianness: a change in any of those alone yields
// TransitionGenericReopen rather than TransitionQuickResume.
func ClassifyTransition(prev audioformat.AudioFormat, hasPrev bool, next audioformat.AudioFormat, highPCMHz, highDSDHz uint32) TransitionKind {
	if !hasPrev {
		return TransitionFullConnect
	}
	if prev.Equal(next) {
		return TransitionQuickResume
	}

	switch {
	case prev.IsDSD && !next.IsDSD:
		return TransitionDSDChange
	case prev.IsDSD && next.IsDSD && prev.SampleRate != next.SampleRate:
		return TransitionDSDChange
	case !prev.IsDSD && !next.IsDSD && prev.SampleRate != next.SampleRate:
		return TransitionPCMRateChange
	case !prev.IsDSD && next.IsDSD:
		sameFamily := prev.ClockFamily() == next.ClockFamily() && prev.ClockFamily() != audioformat.ClockNone
		highRate := prev.IsHighRate(highPCMHz, highDSDHz) || next.IsHighRate(highPCMHz, highDSDHz)
		if sameFamily && highRate {
			return TransitionHighRateClockFamily
		}
		return TransitionLightweightReopen
	default:
		return TransitionGenericReopen
	}
}

// RequiresFullReopen reports whether kind requires the worker to be
// joined and the SDK closed and reconnected from scratch, as opposed
// to a quick-resume or a lightweight SDK-only reopen.
func (k TransitionKind) RequiresFullReopen() bool {
	switch k {
	case TransitionFullConnect, TransitionDSDChange, TransitionPCMRateChange,
		TransitionHighRateClockFamily, TransitionGenericReopen:
		return true
	default:
		return false
	}
}

// SkipsStabilization reports whether kind should skip the post-online
// stabilization preamble, because the DAC's clock is already locked
// (the case where "the DAC is already locked").
func (k TransitionKind) SkipsStabilization() bool {
	return k == TransitionQuickResume
}

// TransitionDelay computes the inter-format delay to wait before
// reopening, per the per-case formulas below. formatSwitchDelay is
// the configured fallback used by case 6 (lightweight reopen).
func TransitionDelay(kind TransitionKind, prev, next audioformat.AudioFormat, formatSwitchDelay time.Duration) time.Duration {
	switch kind {
	case TransitionFullConnect, TransitionQuickResume:
		return 0

	case TransitionDSDChange:
		mult := prev.DSDMultiplier()
		if mult < 1 {
			mult = 1
		}
		d := 200 * time.Millisecond * time.Duration(mult)
		if !next.IsDSD && next.SampleRate >= 176400 {
			ratio := time.Duration(next.SampleRate) / 44100
			if ratio < 1 {
				ratio = 1
			}
			d += 100 * time.Millisecond * ratio
		}
		return d

	case TransitionPCMRateChange, TransitionGenericReopen:
		return 100 * time.Millisecond

	case TransitionHighRateClockFamily:
		mult := next.DSDMultiplier()
		if mult < 1 {
			mult = 1
		}
		return 200 * time.Millisecond * time.Duration(mult)

	case TransitionLightweightReopen:
		return formatSwitchDelay

	default:
		return formatSwitchDelay
	}
}

/*
NAME
  config.go

DESCRIPTION
  config.go defines Config, the SinkConfig handed to the
  controller by the outer CLI/config layer.

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
	"fmt"
	"time"
)

// multiError collects config-validation failures the way
// device.MultiError once collected device setup failures: each bad
// field is defaulted and its error appended, so one call reports every
// problem at once rather than stopping at the first.
type multiError []error

func (me multiError) Error() string {
	return fmt.Sprintf("%v", []error(me))
}

// Config carries the operator-tunable parameters plus the
// high-rate thresholds, exposed here as
// tunable fields rather than hardcoded constants (see SPEC_FULL.md
// Part E).
type Config struct {
	CycleTimeUs         int
	CycleTimeAuto       bool
	TransferMode        TransferMode
	ThreadMode          int
	MTU                 uint32
	MTUFallback         uint32
	DACStabilizationMs  int
	OnlineWaitMs        int
	FormatSwitchDelayMs int

	// HighRatePCMHz / HighRateDSDHz are the thresholds beyond
	// which a format is considered "high-rate" for the purposes of the
	// transition classifier's clock-family choreography. Default to
	// 176400 Hz and 11289600 Hz.
	HighRatePCMHz uint32
	HighRateDSDHz uint32

	// TargetName optionally pins the controller to one discovered
	// Target by name; empty selects the first discovered target.
	TargetName string
}

// DefaultConfig returns a Config populated with the documented
// defaults for every tunable field.
func DefaultConfig() Config {
	return Config{
		CycleTimeAuto:       true,
		TransferMode:        TransferVarMax,
		MTUFallback:         1500,
		DACStabilizationMs:  0,
		OnlineWaitMs:        3000,
		FormatSwitchDelayMs: 100,
		HighRatePCMHz:       176400,
		HighRateDSDHz:       11289600,
	}
}

// onlineWait returns the configured online-wait timeout as a
// time.Duration.
func (c Config) onlineWait() time.Duration {
	return time.Duration(c.OnlineWaitMs) * time.Millisecond
}

var (
	errInvalidMTUFallback  = fmt.Errorf("invalid MTU fallback, defaulting")
	errInvalidOnlineWaitMs = fmt.Errorf("invalid online wait, defaulting")
	errInvalidHighRatePCM  = fmt.Errorf("invalid high-rate PCM threshold, defaulting")
	errInvalidHighRateDSD  = fmt.Errorf("invalid high-rate DSD threshold, defaulting")
)

// Validate defaults any zero/invalid field to DefaultConfig's value,
// returning a multiError naming every field that was defaulted (nil if
// none were).
func (c *Config) Validate() error {
	def := DefaultConfig()
	var errs multiError
	if c.MTUFallback == 0 {
		errs = append(errs, errInvalidMTUFallback)
		c.MTUFallback = def.MTUFallback
	}
	if c.OnlineWaitMs <= 0 {
		errs = append(errs, errInvalidOnlineWaitMs)
		c.OnlineWaitMs = def.OnlineWaitMs
	}
	if c.HighRatePCMHz == 0 {
		errs = append(errs, errInvalidHighRatePCM)
		c.HighRatePCMHz = def.HighRatePCMHz
	}
	if c.HighRateDSDHz == 0 {
		errs = append(errs, errInvalidHighRateDSD)
		c.HighRateDSDHz = def.HighRateDSDHz
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

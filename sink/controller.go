/*
NAME
  controller.go

DESCRIPTION
  controller.go implements Controller, the consumer-side sink state
  machine: discover/open/configure/connect/play,
  format-change choreography, prefill/stabilization arming, cycle-time
  calculation, and the fixed-period consumer callback that pops exactly
  one buffer per tick from the shared ring.

  Grounded on revid.Revid's lifecycle (Start/Stop, generation counters,
  config hot-swap) and protocol/rtcp.Client's retry-with-backoff style
  for the bounded SDK-open and set_sink retries.

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sink implements the consumer side of the bridge: the
// Transport capability interface to the downstream wire-protocol SDK,
// and Controller, the state machine that drives it.
package sink

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ausocean/sqfbridge/audioformat"
	"github.com/ausocean/sqfbridge/convert"
	"github.com/ausocean/sqfbridge/logring"
	"github.com/ausocean/sqfbridge/ring"
	"github.com/ausocean/utils/logging"
)

// pcmPushStrategy selects which ring push method to route formatted
// PCM audio through, derived from (input_bps, diretta_bps).
type pcmPushStrategy int

const (
	pcmPushDirect pcmPushStrategy = iota
	pcmPushPack24
	pcmPushWiden16To32
	pcmPushWiden16To24
)

// formatSnapshot is the cached per-generation state, described as
// "touched only by their respective thread": the producer reads
// producerSnap, and the consumer callback keeps its own copy in
// consumerSnap, refreshed from producerSnap when tick observes a new
// producerGen.
type formatSnapshot struct {
	gen uint32

	isDSD    bool
	pcmPush  pcmPushStrategy
	channels uint8

	bytesPerSample int
	dsdMode        convert.DSDMode

	bytesPerBuffer     int
	silenceByte        byte
	bytesPerFrame      int
	remainderPerBuffer int // out of 1000, added to the accumulator each tick
	remainderAccum     int // consumer-only running accumulator
}

// Controller owns the ring and drives Transport through the lifecycle
// here.
type Controller struct {
	transport Transport
	log       logging.Logger
	cfg       Config
	ring      *ring.Ring

	target Target
	mtu    uint32

	enabled atomic.Bool
	open    atomic.Bool
	playing atomic.Bool
	paused  atomic.Bool

	stopRequested atomic.Bool
	reconfiguring atomic.Bool
	ringUsers     atomic.Int32

	producerGen atomic.Uint32
	consumerGen atomic.Uint32

	prefillTargetBytes atomic.Uint64
	prefillComplete    atomic.Bool

	stabilizationRemaining  atomic.Int64
	silenceBuffersRemaining atomic.Int64

	underrunCount atomic.Uint64

	hasPreviousFormat bool
	previousFormat    audioformat.AudioFormat
	currentFormat     audioformat.AudioFormat

	direttaBps int
	dsdMode    convert.DSDMode
	cycleTime  int // microseconds, recomputed on every open

	producerSnap formatSnapshot
	consumerSnap formatSnapshot

	notify chan struct{}

	workerActive atomic.Bool
	workerStop   chan struct{}
	workerWG     sync.WaitGroup

	mu sync.Mutex // serializes Enable/Open/Close/Release/Disable

	// OnUnderrun, OnFramesDelivered and OnTransition are optional
	// diagnostic hooks a caller may set before Enable to observe the
	// consumer tick and format changes without adding logging overhead
	// to the hot path itself (statsink wires these). Nil hooks are
	// skipped.
	OnUnderrun        func()
	OnFramesDelivered func(n int)
	OnTransition      func(kind TransitionKind, delay time.Duration)

	// LogRing, if set, receives hot-path diagnostics (tick underruns,
	// send_audio backpressure) without blocking or allocating on the
	// calling goroutine, since the consumer
	// callback and send_audio never call logging.Logger directly.
	LogRing *logring.Ring
}

// New constructs a Controller over transport, using cfg for its
// tunable parameters. log receives diagnostic messages.
func New(transport Transport, log logging.Logger, cfg Config) *Controller {
	c := &Controller{
		transport: transport,
		log:       log,
		cfg:       cfg,
		ring:      ring.New(1<<20, 0),
		notify:    make(chan struct{}, 1),
	}
	return c
}

// SetRing replaces the controller's ring, used by the wiring layer to
// hand the controller a ring sized from the operator's configuration
// rather than the package default.
func (c *Controller) SetRing(r *ring.Ring) { c.ring = r }

// Ring returns the controller's ring, for the producer loop to push
// raw/converted samples into.
func (c *Controller) Ring() *ring.Ring { return c.ring }

// Enabled reports whether the controller has a live SDK session.
func (c *Controller) Enabled() bool { return c.enabled.Load() }

// IsOpen reports whether a format is currently applied and the SDK is
// in the connected-playing pose.
func (c *Controller) IsOpen() bool { return c.open.Load() }

// UnderrunCount returns the running count of ticks served as silence
// because the ring held less than one buffer's worth of data.
func (c *Controller) UnderrunCount() uint64 { return c.underrunCount.Load() }

// PrefillComplete reports whether the ring has reached its armed
// prefill target since the last format change. The producer loop uses
// this to gate backpressure waits: waiting on ring fill before prefill
// completes could stall the very fill it is trying to build.
func (c *Controller) PrefillComplete() bool { return c.prefillComplete.Load() }

// Enable discovers a target, measures its MTU, opens the SDK, and logs
// its capabilities. Bounded retries (3 x ~500ms) guard
// the SDK open against a target that is momentarily unavailable.
func (c *Controller) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled.Load() {
		return nil
	}

	targets, err := c.transport.Discover()
	if err != nil {
		return errors.Wrap(err, "sink: discover")
	}
	if len(targets) == 0 {
		return errors.New("sink: no targets discovered")
	}
	target := targets[0]
	if c.cfg.TargetName != "" {
		for _, t := range targets {
			if t.Name == c.cfg.TargetName {
				target = t
				break
			}
		}
	}
	c.target = target

	mtu, err := c.transport.MeasureMTU(target)
	if err != nil || mtu == 0 {
		c.log.Warning("sink: MTU measurement failed, using fallback", "error", err, "fallback", c.cfg.MTUFallback)
		mtu = c.cfg.MTUFallback
	}
	c.mtu = mtu

	const initialCycleTimeUs = 1000
	const openRetries = 3
	for attempt := 0; ; attempt++ {
		err = c.transport.Open(c.cfg.ThreadMode, initialCycleTimeUs, target.Name, target.ID, 0)
		if err == nil {
			break
		}
		if attempt >= openRetries-1 {
			return errors.Wrap(err, "sink: open")
		}
		time.Sleep(500 * time.Millisecond)
	}

	caps, err := c.transport.InquireSupport(target)
	if err != nil {
		c.log.Warning("sink: inquire support failed", "error", err)
	} else {
		c.log.Info("sink: target capabilities",
			"pcm_bit_depths", caps.PCMBitDepths,
			"dsd_bit_orders", len(caps.DSDBitOrders),
			"dsd_byte_orders", len(caps.DSDByteOrders),
			"multi_stream_mode", caps.MultiStreamMode)
	}

	c.transport.SetCallback(c.tick)
	c.enabled.Store(true)
	return nil
}

// Disable sets stopRequested, wakes a producer blocked in WaitForSpace,
// closes if open (which shuts down the worker), and closes the SDK. It
// takes the controller mutex, so an Open in progress, including its
// transition delay, runs to completion before Disable proceeds; the
// delay is not cut short.
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled.Load() {
		return
	}
	c.stopRequested.Store(true)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	if c.open.Load() {
		if err := c.closeInternal(true); err != nil {
			c.log.Warning("sink: close during disable failed", "error", err)
		}
	} else if err := c.transport.Close(); err != nil {
		c.log.Warning("sink: close failed", "error", err)
	}
	c.enabled.Store(false)
}

// Close emits bounded shutdown silence, stops and disconnects the SDK,
// and joins the worker, without freeing the target.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeInternal(false)
}

// Release closes like Close, then fully releases the SDK so the
// target is free for other sources.
func (c *Controller) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.closeInternal(true); err != nil {
		return err
	}
	c.enabled.Store(false)
	return nil
}

// closeInternal implements both close() and the close-half of
// release(); full additionally calls transport.Close to free the SDK
// session entirely. Caller must hold c.mu.
func (c *Controller) closeInternal(full bool) error {
	if !c.open.Load() {
		if full {
			return c.transport.Close()
		}
		return nil
	}

	shutdownMs := c.cfg.DACStabilizationMs
	if shutdownMs <= 0 {
		shutdownMs = 50
	}
	buffers := int64(1)
	if c.cycleTime > 0 {
		buffers = int64(shutdownMs*1000/c.cycleTime) + 1
	}
	c.silenceBuffersRemaining.Store(buffers)
	time.Sleep(time.Duration(shutdownMs) * time.Millisecond)

	c.stopRequested.Store(true)
	if err := c.transport.Stop(); err != nil {
		c.log.Warning("sink: stop failed", "error", err)
	}
	if err := c.transport.Disconnect(true); err != nil {
		c.log.Warning("sink: disconnect failed", "error", err)
	}
	c.stopWorker()

	c.open.Store(false)
	c.playing.Store(false)

	if full {
		return c.transport.Close()
	}
	return nil
}

// Open classifies the requested format transition and choreographs it
// leaving the controller open, playing, and armed for
// prefill (and stabilization, unless the transition skips it).
func (c *Controller) Open(format audioformat.AudioFormat) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled.Load() {
		return errors.New("sink: controller not enabled")
	}

	kind := ClassifyTransition(c.previousFormat, c.hasPreviousFormat, format, c.cfg.HighRatePCMHz, c.cfg.HighRateDSDHz)
	delay := TransitionDelay(kind, c.previousFormat, format, time.Duration(c.cfg.FormatSwitchDelayMs)*time.Millisecond)
	if c.OnTransition != nil {
		c.OnTransition(kind, delay)
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	if kind == TransitionQuickResume {
		return c.quickResume(format)
	}
	return c.reopen(format, kind, kind.RequiresFullReopen())
}

// quickResume implements case 2: clear the ring, re-arm prefill, play,
// and skip stabilization since the DAC clock is already locked.
func (c *Controller) quickResume(format audioformat.AudioFormat) error {
	c.beginReconfigure()
	c.ring.Clear()
	c.armPrefill(format, c.producerSnap)
	c.endReconfigure()

	if err := c.transport.Play(); err != nil {
		return errors.Wrap(err, "sink: play")
	}
	c.playing.Store(true)
	c.paused.Store(false)
	c.stopRequested.Store(false)
	c.previousFormat = format
	c.currentFormat = format
	c.hasPreviousFormat = true
	return nil
}

// reopen implements cases 1, 3, 4, 5 (full==true) and case 6
// (full==false): reconfigure the sink and ring for format, recompute
// cycle time, reconnect, and play. The ring is resized (at unchanged
// capacity) once the new format's silence byte is known, so its fill
// and S24 detection state reset cleanly and silence served during the
// reconfigure window matches the new format (0x00 for PCM, 0x69 for
// DSD).
func (c *Controller) reopen(format audioformat.AudioFormat, kind TransitionKind, full bool) error {
	if full {
		if err := c.closeInternal(false); err != nil {
			c.log.Warning("sink: pre-reopen close failed", "error", err)
		}
	} else if c.open.Load() {
		if err := c.transport.Disconnect(false); err != nil {
			c.log.Warning("sink: pre-reopen disconnect failed", "error", err)
		}
	}

	c.beginReconfigure()

	caps, err := c.transport.InquireSupport(c.target)
	if err != nil {
		c.endReconfigure()
		return errors.Wrap(err, "sink: inquire support")
	}

	var fid FormatID
	var direttaBps int
	var dsdMode convert.DSDMode
	if format.IsDSD {
		fid, dsdMode, err = configureDSDSink(c.transport, format, caps)
	} else {
		fid, direttaBps, err = configurePCMSink(c.transport, format, caps)
	}
	if err != nil {
		c.endReconfigure()
		return errors.Wrap(err, "sink: configure sink format")
	}

	if err := c.transport.SetSinkConfigure(fid); err != nil {
		c.endReconfigure()
		return errors.Wrap(err, "sink: set sink configure")
	}
	if err := c.transport.ConfigTransfer(c.cfg.TransferMode); err != nil {
		c.endReconfigure()
		return errors.Wrap(err, "sink: config transfer")
	}

	cycleTimeUs := computeCycleTime(format, direttaBps, c.mtu)

	const setSinkRetries = 3
	for attempt := 0; ; attempt++ {
		err = c.transport.SetSink(c.target, cycleTimeUs, c.mtu)
		if err == nil {
			break
		}
		if attempt >= setSinkRetries-1 {
			c.endReconfigure()
			return errors.Wrap(err, "sink: set_sink")
		}
		time.Sleep(500 * time.Millisecond)
	}

	if err := c.transport.ConnectPrepare(); err != nil {
		c.endReconfigure()
		return errors.Wrap(err, "sink: connect prepare")
	}
	if err := c.transport.Connect(); err != nil {
		c.endReconfigure()
		return errors.Wrap(err, "sink: connect")
	}
	if err := c.transport.ConnectWait(c.cfg.onlineWait()); err != nil {
		c.log.Warning("sink: target did not report online within timeout", "error", err)
	}

	c.direttaBps = direttaBps
	c.dsdMode = dsdMode
	c.cycleTime = cycleTimeUs

	snap := buildSnapshot(format, direttaBps, dsdMode, cycleTimeUs)
	c.ring.Resize(uint32(c.ring.Capacity()), snap.silenceByte)
	c.applySnapshot(snap)
	c.armPrefill(format, snap)
	if !kind.SkipsStabilization() {
		c.armStabilization(format, cycleTimeUs)
	}
	c.endReconfigure()

	if err := c.transport.Play(); err != nil {
		return errors.Wrap(err, "sink: play")
	}
	c.startWorker()

	c.open.Store(true)
	c.playing.Store(true)
	c.paused.Store(false)
	c.stopRequested.Store(false)
	c.previousFormat = format
	c.currentFormat = format
	c.hasPreviousFormat = true
	return nil
}

// configurePCMSink probes the PCM bit depths in order
// (32 -> 24 -> 16), sets the first caps accepts, and derives the ring
// push strategy and FormatID from the accepted depth.
func configurePCMSink(t Transport, format audioformat.AudioFormat, caps Capabilities) (FormatID, int, error) {
	family441 := format.ClockFamily() == audioformat.ClockFamily441
	mult := rateMultiplier(format)

	for _, bps := range []uint8{32, 24, 16} {
		fid := FormatID{
			IsDSD:          false,
			Channels:       format.Channels,
			PCMBitDepth:    bps,
			RateFamily441:  family441,
			RateMultiplier: mult,
		}
		if t.CheckSinkSupport(fid) {
			if _, err := selectPCMPushStrategy(inputBps(format), int(bps)); err != nil {
				return FormatID{}, 0, err
			}
			return fid, int(bps), nil
		}
	}
	// No probe succeeded; fall back to the narrowest depth. This only
	// succeeds for 16-bit sources: a 24/32-bit source has no push
	// strategy to a 16-bit target, so the open fails with an error.
	fid := FormatID{IsDSD: false, Channels: format.Channels, PCMBitDepth: 16, RateFamily441: family441, RateMultiplier: mult}
	if _, err := selectPCMPushStrategy(inputBps(format), 16); err != nil {
		return FormatID{}, 0, err
	}
	return fid, 16, nil
}

// configureDSDSink probes the (bit order, byte order) combinations of
// in order and derives the DSD conversion mode from the chosen
// target encoding combined with the source endianness.
func configureDSDSink(t Transport, format audioformat.AudioFormat, caps Capabilities) (FormatID, convert.DSDMode, error) {
	mult := rateMultiplier(format)
	combos := []struct {
		bitOrder  BitOrder
		byteOrder ByteOrder
	}{
		{BitOrderLSB, ByteOrderBig},
		{BitOrderMSB, ByteOrderBig},
		{BitOrderLSB, ByteOrderLittle},
		{BitOrderMSB, ByteOrderLittle},
	}
	chosen := combos[2] // default: LSB, little-endian container, when no probe succeeds.
	for _, combo := range combos {
		fid := FormatID{
			IsDSD:          true,
			Channels:       format.Channels,
			RateFamily441:  format.ClockFamily() == audioformat.ClockFamily441,
			RateMultiplier: mult,
			DSDBitOrder:    combo.bitOrder,
			DSDByteOrder:   combo.byteOrder,
		}
		if t.CheckSinkSupport(fid) {
			chosen = combo
			break
		}
	}

	fid := FormatID{
		IsDSD:          true,
		Channels:       format.Channels,
		RateFamily441:  format.ClockFamily() == audioformat.ClockFamily441,
		RateMultiplier: mult,
		DSDBitOrder:    chosen.bitOrder,
		DSDByteOrder:   chosen.byteOrder,
	}
	sourceMSBFirst := format.DSDEndianness == audioformat.DFFMSB
	mode := convert.SelectDSDMode(sourceMSBFirst, chosen.bitOrder == BitOrderMSB, chosen.byteOrder == ByteOrderBig)
	return fid, mode, nil
}

// inputBps returns the byte width of the containers the producer
// writes into the ring for format: 4 bytes for 24/32-bit sources, 2
// for 16-bit.
func inputBps(format audioformat.AudioFormat) int {
	if format.BitDepth == 16 {
		return 2
	}
	return 4
}

// selectPCMPushStrategy derives which ring push method carries PCM
// audio from an inputBps-wide container to a direttaBps-wide target,
// per the rule "pack/upsample flags follow from (input_bps, diretta_bps)".
//
// Downgrading a wider-than-16-bit source to a 16-bit target has no
// ring push method (the ring API exposes packing and widening, never
// narrowing); this combination only arises if a target's capability
// probe rejects both 32 and 24-bit PCM, which no real DAC in the
// examined capability sets does, so it is treated as a configuration
// error rather than silently truncating samples.
func selectPCMPushStrategy(inputBps, direttaBps int) (pcmPushStrategy, error) {
	switch {
	case inputBps == 4 && direttaBps == 32:
		return pcmPushDirect, nil
	case inputBps == 4 && direttaBps == 24:
		return pcmPushPack24, nil
	case inputBps == 2 && direttaBps == 32:
		return pcmPushWiden16To32, nil
	case inputBps == 2 && direttaBps == 24:
		return pcmPushWiden16To24, nil
	case inputBps == 2 && direttaBps == 16:
		return pcmPushDirect, nil
	default:
		return 0, errors.Errorf("sink: no push strategy for input_bps=%d diretta_bps=%d", inputBps, direttaBps)
	}
}

// rateMultiplier returns format's rate expressed relative to its clock
// family's base rate (44100/48000 for PCM, DSD64 for DSD).
func rateMultiplier(format audioformat.AudioFormat) int {
	if format.IsDSD {
		return format.DSDMultiplier()
	}
	switch format.ClockFamily() {
	case audioformat.ClockFamily441:
		return int(format.SampleRate / 44100)
	case audioformat.ClockFamily48:
		return int(format.SampleRate / 48000)
	default:
		return 1
	}
}

// computeCycleTime implements the wire cycle-time formula,
// clamped to [100, 50000] microseconds.
func computeCycleTime(format audioformat.AudioFormat, direttaBps int, mtu uint32) int {
	bps := direttaBps
	if format.IsDSD {
		bps = 1
	}
	bytesPerSec := float64(format.SampleRate) * float64(format.Channels) * float64(bps) / 8.0
	if bytesPerSec <= 0 {
		return 100
	}
	us := (float64(mtu) - 48) / bytesPerSec * 1e6
	v := int(math.Round(us))
	if v < 100 {
		v = 100
	}
	if v > 50000 {
		v = 50000
	}
	return v
}

// buildSnapshot computes the cached per-generation state for format at
// the given push configuration and cycle time.
func buildSnapshot(format audioformat.AudioFormat, direttaBps int, dsdMode convert.DSDMode, cycleTimeUs int) formatSnapshot {
	var snap formatSnapshot
	snap.isDSD = format.IsDSD
	snap.channels = format.Channels
	snap.dsdMode = dsdMode

	effectiveRate := uint64(format.SampleRate)
	bytesPerSample := direttaBps / 8
	if format.IsDSD {
		// A DSD "frame" is 8 bits (one byte) per channel; the bit rate
		// divided by 8 gives the byte-frame rate.
		effectiveRate /= 8
		bytesPerSample = 1
		snap.silenceByte = 0x69
	} else {
		strategy, _ := selectPCMPushStrategy(inputBps(format), direttaBps)
		snap.pcmPush = strategy
		snap.silenceByte = 0x00
	}
	snap.bytesPerSample = bytesPerSample
	snap.bytesPerFrame = bytesPerSample * int(format.Channels)

	product := effectiveRate * uint64(cycleTimeUs)
	nominalFrames := product / 1_000_000
	rem := product % 1_000_000
	snap.remainderPerBuffer = int(rem * 1000 / 1_000_000)
	snap.bytesPerBuffer = int(nominalFrames) * snap.bytesPerFrame

	return snap
}

// applySnapshot installs snap as producerSnap and bumps both generation
// counters; tick copies producerSnap into consumerSnap the next time it
// observes the producerGen change. producerSnap is written before the generation is
// published so that a tick observing the new producerGen is guaranteed
// to see the completed snap, not a torn or stale one.
func (c *Controller) applySnapshot(snap formatSnapshot) {
	gen := c.producerGen.Load() + 1
	snap.gen = gen
	c.producerSnap = snap
	c.producerGen.Store(gen)
	c.consumerGen.Store(gen)
}

// armPrefill computes the prefill target in bytes from snap's
// per-buffer size and the format's compressed/DSD/PCM class, clamped
// to [8 buffers, capacity/4].
func (c *Controller) armPrefill(format audioformat.AudioFormat, snap formatSnapshot) {
	var ms int
	switch {
	case !snap.isDSD && format.IsCompressed:
		ms = 200
	case snap.isDSD:
		ms = 150
	default:
		ms = 100
	}
	bytesPerSec := 0
	if snap.bytesPerBuffer > 0 && c.cycleTime > 0 {
		bytesPerSec = snap.bytesPerBuffer * 1_000_000 / c.cycleTime
	}
	targetBytes := uint64(bytesPerSec) * uint64(ms) / 1000

	minBytes := uint64(8 * snap.bytesPerBuffer)
	maxBytes := c.ring.Capacity() / 4
	if targetBytes < minBytes {
		targetBytes = minBytes
	}
	if targetBytes > maxBytes {
		targetBytes = maxBytes
	}
	c.prefillTargetBytes.Store(targetBytes)
	c.prefillComplete.Store(false)
}

// armStabilization arms the post-online stabilization counter: a
// buffer count that targets a wall-clock duration invariant over MTU
// (50ms x max(1,dsd_multiplier) for DSD, ~20 buffers for PCM), derived
// from the freshly computed cycle time.
func (c *Controller) armStabilization(format audioformat.AudioFormat, cycleTimeUs int) {
	var count int64
	if format.IsDSD {
		mult := format.DSDMultiplier()
		if mult < 1 {
			mult = 1
		}
		durationUs := int64(50*mult) * 1000
		count = durationUs / int64(cycleTimeUs)
		if count < 1 {
			count = 1
		}
	} else {
		count = 20
	}
	c.stabilizationRemaining.Store(count)
}

// beginReconfigure / endReconfigure implement the reader-
// writer discipline: set reconfiguring, then spin-yield until no ring
// user (producer push or consumer tick) is mid-guard.
func (c *Controller) beginReconfigure() {
	c.reconfiguring.Store(true)
	for c.ringUsers.Load() != 0 {
		runtime.Gosched()
	}
}

func (c *Controller) endReconfigure() {
	c.reconfiguring.Store(false)
}

// ringGuardEnter is the cheap readers-writer entry guard producers and
// the consumer callback use to access the ring while a reconfiguration
// may be in flight.
func (c *Controller) ringGuardEnter() bool {
	if c.reconfiguring.Load() {
		return false
	}
	c.ringUsers.Add(1)
	if c.reconfiguring.Load() {
		c.ringUsers.Add(-1)
		return false
	}
	return true
}

func (c *Controller) ringGuardExit() {
	c.ringUsers.Add(-1)
}

// startWorker launches the background worker goroutine that must be
// joined before the SDK is closed. Idempotent: a no-op while
// already active.
func (c *Controller) startWorker() {
	if c.workerActive.Load() {
		return
	}
	c.workerStop = make(chan struct{})
	c.workerActive.Store(true)
	c.workerWG.Add(1)
	stop := c.workerStop
	go func() {
		defer c.workerWG.Done()
		<-stop
	}()
}

// stopWorker signals the worker to exit and joins it.
func (c *Controller) stopWorker() {
	if !c.workerActive.Load() {
		return
	}
	close(c.workerStop)
	c.workerWG.Wait()
	c.workerActive.Store(false)
}

// tick is the callback Transport invokes at cycle_time_us intervals.
// It must fill buf exactly and never block for long, per the
// contract. The check ordering follows the controller's state machine precisely.
func (c *Controller) tick(buf []byte) {
	if c.consumerSnap.gen != c.producerGen.Load() {
		c.consumerSnap = c.producerSnap
		c.consumerSnap.remainderAccum = 0
	}
	snap := &c.consumerSnap

	n := snap.bytesPerBuffer
	snap.remainderAccum += snap.remainderPerBuffer
	if snap.remainderAccum >= 1000 {
		snap.remainderAccum -= 1000
		n += snap.bytesPerFrame
	}
	if n > len(buf) {
		n = len(buf)
	}

	serveSilence := func() {
		for i := range buf {
			buf[i] = snap.silenceByte
		}
	}

	if r := c.silenceBuffersRemaining.Load(); r > 0 {
		c.silenceBuffersRemaining.Add(-1)
		serveSilence()
		return
	}
	if c.stopRequested.Load() {
		serveSilence()
		return
	}
	if !c.prefillComplete.Load() {
		serveSilence()
		return
	}
	if s := c.stabilizationRemaining.Load(); s > 0 {
		c.stabilizationRemaining.Add(-1)
		serveSilence()
		return
	}

	if !c.ringGuardEnter() {
		serveSilence()
		return
	}
	defer c.ringGuardExit()

	if int(c.ring.Available()) < n {
		c.underrunCount.Add(1)
		if c.OnUnderrun != nil {
			c.OnUnderrun()
		}
		if c.LogRing != nil {
			c.LogRing.Push(time.Now(), logging.Warning, "sink: tick underrun")
		}
		serveSilence()
		return
	}

	got := c.ring.Pop(buf[:n], n)
	for i := got; i < len(buf); i++ {
		buf[i] = snap.silenceByte
	}
	if c.OnFramesDelivered != nil {
		c.OnFramesDelivered(got)
	}

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// PushAudio routes data (already aligned to the producer's cached
// snapshot) into the ring, applying whichever conversion the current
// format and target configuration require. It returns the number of
// input bytes consumed. It is the sole entry point the producer loop
// uses to write audio.
func (c *Controller) PushAudio(data []byte) int {
	if !c.ringGuardEnter() {
		return 0
	}
	defer c.ringGuardExit()

	snap := &c.producerSnap
	var consumed int
	switch {
	case snap.isDSD:
		consumed = c.ring.PushDSDPlanar(data, int(snap.channels), snap.dsdMode)
	default:
		switch snap.pcmPush {
		case pcmPushPack24:
			consumed = c.ring.Push24Packed(data)
		case pcmPushWiden16To32:
			consumed = c.ring.Push16To32(data)
		case pcmPushWiden16To24:
			consumed = c.ring.Push16To24(data)
		default:
			consumed = c.ring.Push(data)
		}
	}

	if !c.prefillComplete.Load() && c.ring.Available() >= c.prefillTargetBytes.Load() {
		c.prefillComplete.Store(true)
	}
	if consumed < len(data) && c.LogRing != nil {
		c.LogRing.Push(time.Now(), logging.Warning, "sink: send_audio did not consume full chunk")
	}
	return consumed
}

// WaitForSpace blocks until the consumer signals free space, shutdown
// is requested, or timeout elapses, whichever comes first (the
// producer backpressure wait).
func (c *Controller) WaitForSpace(timeout time.Duration) {
	select {
	case <-c.notify:
	case <-time.After(timeout):
	}
}

// StopRequested reports whether shutdown has been signalled, for the
// producer loop's cancellation checkpoint).
func (c *Controller) StopRequested() bool { return c.stopRequested.Load() }

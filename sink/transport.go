/*
NAME
  transport.go

DESCRIPTION
  transport.go defines Transport, the capability interface the
  SinkController uses to speak to the downstream wire-protocol SDK
  (design note: "express this as a capability the controller
  owns ... the contract is what matters; inheritance is not").

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

import "time"

// Target describes one discoverable downstream DAC/renderer.
type Target struct {
	Name string
	ID   string
}

// BitOrder is the DSD bit ordering a target format requests.
type BitOrder int

const (
	BitOrderLSB BitOrder = iota
	BitOrderMSB
)

// ByteOrder is the DSD container byte ordering a target format requests.
type ByteOrder int

const (
	ByteOrderBig ByteOrder = iota
	ByteOrderLittle
)

// TransferMode selects the wire transport's framing strategy.
type TransferMode int

const (
	TransferFixAuto TransferMode = iota
	TransferVarAuto
	TransferVarMax
)

// FormatID identifies one of the fixed enumeration of wire formats the
// controller may ask the target to accept: PCM signed 16/24/32
// combined with rate class and multiplier, or DSD with a 32-bit
// container, bit order, and byte order, plus channel count in both
// cases.
type FormatID struct {
	IsDSD    bool
	Channels uint8

	// PCM fields.
	PCMBitDepth    uint8 // 16, 24 or 32.
	RateFamily441  bool  // true: 44.1kHz family, false: 48kHz family.
	RateMultiplier int   // e.g. 1 for 44100/48000, 2 for 88200/96000, ...

	// DSD fields.
	DSDBitOrder  BitOrder
	DSDByteOrder ByteOrder
}

// Capabilities describes what a discovered Target supports, as
// returned by InquireSupport, for logging and format negotiation.
type Capabilities struct {
	PCMBitDepths    []uint8
	DSDBitOrders    []BitOrder
	DSDByteOrders   []ByteOrder
	MultiStreamMode string
}

// Callback is the function the transport invokes at every cycle tick;
// the controller must fill exactly len(buf) bytes and return.
type Callback func(buf []byte)

// Transport is the capability the SinkController drives to discover,
// configure, connect to, and stream audio toward a downstream target.
// It models the contract of the wire-protocol SDK; a concrete
// implementation wraps whatever cgo/IPC binding talks to the actual
// SDK, but nothing in this package depends on that binding directly.
type Transport interface {
	// Discover returns the currently visible targets.
	Discover() ([]Target, error)

	// MeasureMTU best-effort measures the path MTU to target.
	MeasureMTU(target Target) (uint32, error)

	// Open brings the SDK into a usable state with the given initial
	// cycle time, idempotent while already open.
	Open(threadMode int, cycleTimeUs int, name, id string, msMode int) error

	// SetSink configures the target for streaming at the given cycle
	// time and MTU.
	SetSink(target Target, cycleTimeUs int, mtu uint32) error

	// InquireSupport returns target's capability set.
	InquireSupport(target Target) (Capabilities, error)

	// CheckSinkSupport reports whether target currently accepts id.
	CheckSinkSupport(id FormatID) bool

	// SetSinkConfigure commits to id as the active wire format.
	SetSinkConfigure(id FormatID) error

	// ConfigTransfer selects the framing strategy for the current
	// stream.
	ConfigTransfer(mode TransferMode) error

	ConnectPrepare() error
	Connect() error
	ConnectWait(timeout time.Duration) error
	Disconnect(immediate bool) error
	Play() error
	Stop() error

	// IsOnline reports whether the target has reported its clock
	// locked and ready to receive audio.
	IsOnline() bool

	// Close fully releases the target so other sources may use it.
	Close() error

	// SetCallback registers cb as the per-tick buffer-fill function
	// (the get_new_stream contract).
	SetCallback(cb Callback)
}

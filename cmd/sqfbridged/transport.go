/*
NAME
  transport.go

DESCRIPTION
  transport.go provides loopbackTransport, a minimal, self-contained
  sink.Transport used when the binary is not linked against a real
  vendor wire-protocol SDK binding. It discovers one synthetic target
  and drives the registered callback on its own ticker, enough to bring
  the bridge up end-to-end for local verification. A production build
  replaces this with whatever cgo/IPC binding talks to the actual SDK
  (sink.Transport is the seam).

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ausocean/sqfbridge/sink"
	"github.com/ausocean/utils/logging"
)

// loopbackTargetName identifies the synthetic target loopbackTransport
// discovers; a real SDK binding would enumerate actual DACs/renderers.
const loopbackTargetName = "loopback"

// loopbackTransport is a lightweight, in-process sink.Transport,
// analogous to the mock SDKs the pack's example repos ship alongside
// their real bindings. It accepts every format and runs its own ticker
// thread to exercise Controller's callback contract.
type loopbackTransport struct {
	log logging.Logger

	mu          sync.Mutex
	cb          sink.Callback
	mtu         uint32
	cycleTimeUs int

	online atomic.Bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

func newLoopbackTransport(log logging.Logger) *loopbackTransport {
	return &loopbackTransport{log: log}
}

func (t *loopbackTransport) Discover() ([]sink.Target, error) {
	return []sink.Target{{Name: loopbackTargetName, ID: loopbackTargetName}}, nil
}

func (t *loopbackTransport) MeasureMTU(sink.Target) (uint32, error) { return 1500, nil }

func (t *loopbackTransport) Open(threadMode, cycleTimeUs int, name, id string, msMode int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cycleTimeUs = cycleTimeUs
	return nil
}

func (t *loopbackTransport) SetSink(target sink.Target, cycleTimeUs int, mtu uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cycleTimeUs = cycleTimeUs
	t.mtu = mtu
	return nil
}

func (t *loopbackTransport) InquireSupport(sink.Target) (sink.Capabilities, error) {
	return sink.Capabilities{
		PCMBitDepths:  []uint8{16, 24, 32},
		DSDBitOrders:  []sink.BitOrder{sink.BitOrderLSB, sink.BitOrderMSB},
		DSDByteOrders: []sink.ByteOrder{sink.ByteOrderBig, sink.ByteOrderLittle},
	}, nil
}

func (t *loopbackTransport) CheckSinkSupport(sink.FormatID) bool { return true }

func (t *loopbackTransport) SetSinkConfigure(sink.FormatID) error { return nil }

func (t *loopbackTransport) ConfigTransfer(sink.TransferMode) error { return nil }

func (t *loopbackTransport) ConnectPrepare() error { return nil }

func (t *loopbackTransport) Connect() error {
	t.online.Store(true)
	return nil
}

func (t *loopbackTransport) ConnectWait(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !t.online.Load() {
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (t *loopbackTransport) Disconnect(immediate bool) error {
	t.online.Store(false)
	return nil
}

func (t *loopbackTransport) Play() error {
	t.mu.Lock()
	cb := t.cb
	mtu := t.mtu
	cycleTimeUs := t.cycleTimeUs
	t.mu.Unlock()
	if cb == nil || mtu == 0 || cycleTimeUs <= 0 {
		return nil
	}

	t.stop = make(chan struct{})
	t.wg.Add(1)
	go t.run(cb, int(mtu), cycleTimeUs)
	return nil
}

func (t *loopbackTransport) run(cb sink.Callback, bufSize, cycleTimeUs int) {
	defer t.wg.Done()
	ticker := time.NewTicker(time.Duration(cycleTimeUs) * time.Microsecond)
	defer ticker.Stop()
	buf := make([]byte, bufSize)
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			cb(buf)
		}
	}
}

func (t *loopbackTransport) Stop() error {
	if t.stop != nil {
		close(t.stop)
		t.wg.Wait()
		t.stop = nil
	}
	return nil
}

func (t *loopbackTransport) IsOnline() bool { return t.online.Load() }

func (t *loopbackTransport) Close() error {
	return t.Stop()
}

func (t *loopbackTransport) SetCallback(cb sink.Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cb = cb
}

package sink

import (
	"testing"
	"time"

	"github.com/ausocean/sqfbridge/audioformat"
	"github.com/ausocean/sqfbridge/convert"
	"github.com/ausocean/sqfbridge/ring"
)

// fakeTransport is a minimal Transport double for driving Controller in
// tests without a real wire-protocol SDK.
type fakeTransport struct {
	targets      []Target
	mtu          uint32
	caps         Capabilities
	supportedIDs map[FormatID]bool
	cb           Callback
	online       bool

	openCalls    int
	setSinkCalls int
	connectCalls int
	playCalls    int
	stopCalls    int
	disconnects  int
	closeCalls   int
}

func (f *fakeTransport) Discover() ([]Target, error) { return f.targets, nil }
func (f *fakeTransport) MeasureMTU(Target) (uint32, error) { return f.mtu, nil }
func (f *fakeTransport) Open(int, int, string, string, int) error { f.openCalls++; return nil }
func (f *fakeTransport) SetSink(Target, int, uint32) error { f.setSinkCalls++; return nil }
func (f *fakeTransport) InquireSupport(Target) (Capabilities, error) { return f.caps, nil }
func (f *fakeTransport) CheckSinkSupport(id FormatID) bool { return f.supportedIDs[id] }
func (f *fakeTransport) SetSinkConfigure(FormatID) error { return nil }
func (f *fakeTransport) ConfigTransfer(TransferMode) error { return nil }
func (f *fakeTransport) ConnectPrepare() error { return nil }
func (f *fakeTransport) Connect() error { f.connectCalls++; return nil }
func (f *fakeTransport) ConnectWait(time.Duration) error { return nil }
func (f *fakeTransport) Disconnect(bool) error { f.disconnects++; return nil }
func (f *fakeTransport) Play() error { f.playCalls++; return nil }
func (f *fakeTransport) Stop() error { f.stopCalls++; return nil }
func (f *fakeTransport) IsOnline() bool { return f.online }
func (f *fakeTransport) Close() error { f.closeCalls++; return nil }
func (f *fakeTransport) SetCallback(cb Callback) { f.cb = cb }

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		targets:      []Target{{Name: "dac0", ID: "0"}},
		mtu:          1500,
		supportedIDs: map[FormatID]bool{},
	}
}

func TestComputeCycleTimeClamped(t *testing.T) {
	f := pcmFmt(44100, 24, 2)
	got := computeCycleTime(f, 24, 1500)
	if got < 100 || got > 50000 {
		t.Fatalf("cycle time %d out of clamp range", got)
	}
}

func TestComputeCycleTimeZeroRateClampsToFloor(t *testing.T) {
	f := audioformat.AudioFormat{}
	got := computeCycleTime(f, 24, 1500)
	if got != 100 {
		t.Fatalf("got %d, want 100", got)
	}
}

func TestBuildSnapshotPCM(t *testing.T) {
	f := pcmFmt(44100, 24, 2)
	snap := buildSnapshot(f, 24, convert.DSDPassthrough, 1000)
	if snap.isDSD {
		t.Fatal("expected PCM snapshot")
	}
	if snap.bytesPerFrame != 3*2 {
		t.Fatalf("bytesPerFrame = %d, want 6", snap.bytesPerFrame)
	}
	// 44100 * 1000us = 44.1 frames per buffer: 44 whole frames, remainder 100/1000.
	if snap.remainderPerBuffer != 100 {
		t.Fatalf("remainderPerBuffer = %d, want 100", snap.remainderPerBuffer)
	}
}

func TestSelectPCMPushStrategyUnsupportedNarrowing(t *testing.T) {
	if _, err := selectPCMPushStrategy(4, 16); err == nil {
		t.Fatal("expected error for 32/24-bit source narrowed to 16-bit target")
	}
}

func TestSelectPCMPushStrategyMatrix(t *testing.T) {
	cases := []struct {
		inBps, outBps int
		want          pcmPushStrategy
	}{
		{4, 32, pcmPushDirect},
		{4, 24, pcmPushPack24},
		{2, 32, pcmPushWiden16To32},
		{2, 24, pcmPushWiden16To24},
		{2, 16, pcmPushDirect},
	}
	for _, c := range cases {
		got, err := selectPCMPushStrategy(c.inBps, c.outBps)
		if err != nil {
			t.Fatalf("selectPCMPushStrategy(%d,%d) error: %v", c.inBps, c.outBps, err)
		}
		if got != c.want {
			t.Errorf("selectPCMPushStrategy(%d,%d) = %v, want %v", c.inBps, c.outBps, got, c.want)
		}
	}
}

func TestTickServesSilenceBeforePrefillComplete(t *testing.T) {
	c := &Controller{ring: ring.New(1 << 16, 0)}
	c.applySnapshot(formatSnapshot{bytesPerBuffer: 16, bytesPerFrame: 4, silenceByte: 0xAA})

	buf := make([]byte, 16)
	c.tick(buf)
	for _, b := range buf {
		if b != 0xAA {
			t.Fatalf("expected silence byte 0xAA, got %x", b)
		}
	}
}

func TestTickPopsAfterPrefillComplete(t *testing.T) {
	c := &Controller{ring: ring.New(1 << 16, 0)}
	c.applySnapshot(formatSnapshot{bytesPerBuffer: 4, bytesPerFrame: 4, silenceByte: 0})
	c.prefillComplete.Store(true)
	data := []byte{1, 2, 3, 4}
	c.ring.Push(data)

	buf := make([]byte, 4)
	c.tick(buf)
	for i, want := range data {
		if buf[i] != want {
			t.Fatalf("buf[%d] = %d, want %d", i, buf[i], want)
		}
	}
}

// nullLogger discards every message; it satisfies logging.Logger for
// tests that don't care about log output.
type nullLogger struct{}

func (nullLogger) Debug(string, ...interface{})   {}
func (nullLogger) Info(string, ...interface{})    {}
func (nullLogger) Warning(string, ...interface{}) {}
func (nullLogger) Error(string, ...interface{})   {}

func TestEnableOpenFullConnectFlow(t *testing.T) {
	ft := newFakeTransport()
	ft.supportedIDs[FormatID{IsDSD: false, Channels: 2, PCMBitDepth: 24, RateFamily441: false, RateMultiplier: 1}] = true

	cfg := DefaultConfig()
	c := New(ft, nullLogger{}, cfg)
	c.SetRing(ring.New(1<<16, 0))

	if err := c.Enable(); err != nil {
		t.Fatalf("Enable() error: %v", err)
	}
	if !c.Enabled() {
		t.Fatal("expected controller to be enabled")
	}
	if ft.openCalls == 0 {
		t.Fatal("expected transport.Open to be called")
	}

	f := pcmFmt(48000, 24, 2)
	if err := c.Open(f); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if !c.IsOpen() {
		t.Fatal("expected controller to be open")
	}
	if ft.connectCalls == 0 || ft.playCalls == 0 {
		t.Fatal("expected connect and play to be called")
	}
	if c.producerSnap.pcmPush != pcmPushPack24 {
		t.Fatalf("pcmPush = %v, want pcmPushPack24", c.producerSnap.pcmPush)
	}

	c.Disable()
	if c.Enabled() {
		t.Fatal("expected controller to be disabled")
	}
}

func TestTickUnderrunIncrementsCounter(t *testing.T) {
	c := &Controller{ring: ring.New(1 << 16, 0)}
	c.applySnapshot(formatSnapshot{bytesPerBuffer: 8, bytesPerFrame: 4, silenceByte: 0x69})
	c.prefillComplete.Store(true)

	buf := make([]byte, 8)
	c.tick(buf)
	if c.UnderrunCount() != 1 {
		t.Fatalf("UnderrunCount() = %d, want 1", c.UnderrunCount())
	}
	for _, b := range buf {
		if b != 0x69 {
			t.Fatalf("expected silence byte 0x69, got %x", b)
		}
	}
}

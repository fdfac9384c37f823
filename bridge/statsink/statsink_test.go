package statsink

import (
	"testing"
	"time"

	"github.com/ausocean/sqfbridge/sink"
)

type nullLogger struct{}

func (nullLogger) Debug(string, ...interface{})   {}
func (nullLogger) Info(string, ...interface{})    {}
func (nullLogger) Warning(string, ...interface{}) {}
func (nullLogger) Error(string, ...interface{})   {}

func TestSummarizeAggregatesEvents(t *testing.T) {
	s := New(nullLogger{})
	s.RecordUnderrun()
	s.RecordUnderrun()
	s.RecordFramesDelivered(256)
	s.RecordFramesDelivered(128)
	s.RecordFormatChange(sink.TransitionPCMRateChange, 100*time.Millisecond)

	sum := s.Summarize()
	if sum.Underruns != 2 {
		t.Fatalf("Underruns = %d, want 2", sum.Underruns)
	}
	if sum.FramesDelivered != 384 {
		t.Fatalf("FramesDelivered = %d, want 384", sum.FramesDelivered)
	}
	if sum.FormatChanges != 1 {
		t.Fatalf("FormatChanges = %d, want 1", sum.FormatChanges)
	}
	if sum.TotalSwitchTime != 100*time.Millisecond {
		t.Fatalf("TotalSwitchTime = %v, want 100ms", sum.TotalSwitchTime)
	}
}

func TestSummarizeEmptyIsZero(t *testing.T) {
	s := New(nullLogger{})
	sum := s.Summarize()
	if sum.Underruns != 0 || sum.FramesDelivered != 0 || sum.FormatChanges != 0 {
		t.Fatalf("expected zero summary, got %+v", sum)
	}
}

func TestCloseLogsAndFlushes(t *testing.T) {
	s := New(nullLogger{})
	s.RecordUnderrun()
	s.Close() // must not panic
}

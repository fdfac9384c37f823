package logring

import (
	"testing"
	"time"
)

func TestPushPop(t *testing.T) {
	r := New(4)
	r.Push(time.Now(), 0, "hello")
	rec, ok := r.Pop()
	if !ok {
		t.Fatal("expected a record")
	}
	if rec.Message() != "hello" {
		t.Fatalf("Message() = %q, want %q", rec.Message(), "hello")
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("expected ring to be empty")
	}
}

func TestPushDropsWhenFull(t *testing.T) {
	r := New(2) // rounds to 2
	r.Push(time.Now(), 0, "a")
	r.Push(time.Now(), 0, "b")
	r.Push(time.Now(), 0, "c") // should be dropped
	if r.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", r.Dropped())
	}
	rec, _ := r.Pop()
	if rec.Message() != "a" {
		t.Fatalf("first popped = %q, want %q", rec.Message(), "a")
	}
}

func TestMessageTruncation(t *testing.T) {
	r := New(4)
	long := make([]byte, MessageLen*2)
	for i := range long {
		long[i] = 'x'
	}
	r.Push(time.Now(), 0, string(long))
	rec, _ := r.Pop()
	if len(rec.Message()) != MessageLen {
		t.Fatalf("Message() length = %d, want %d", len(rec.Message()), MessageLen)
	}
}

package pipeio

import (
	"bytes"
	"io"
	"testing"
)

var sqfh = [MagicLen]byte{'S', 'Q', 'F', 'H'}

func TestReadExact(t *testing.T) {
	p := New(bytes.NewReader([]byte("hello world")), sqfh)
	got, err := p.ReadExact(5)
	if err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
	got, err = p.ReadExact(6)
	if err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if string(got) != " world" {
		t.Fatalf("got %q, want %q", got, " world")
	}
}

func TestReadExactShortReturnsError(t *testing.T) {
	p := New(bytes.NewReader([]byte("abc")), sqfh)
	got, err := p.ReadExact(10)
	if err == nil {
		t.Fatal("expected error for short stream")
	}
	if string(got) != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	p := New(bytes.NewReader([]byte("abcdef")), sqfh)
	peeked, err := p.Peek(3)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if string(peeked) != "abc" {
		t.Fatalf("peeked = %q, want %q", peeked, "abc")
	}
	got, err := p.ReadExact(6)
	if err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if string(got) != "abcdef" {
		t.Fatalf("got %q, want %q", got, "abcdef")
	}
}

func TestReadUpToTruncatesBeforeEmbeddedHeader(t *testing.T) {
	// Audio byte, then a header starting at offset 1.
	data := append([]byte{0xFF}, append([]byte("SQFH"), []byte("therest")...)...)
	p := New(bytes.NewReader(data), sqfh)
	got, err := p.ReadUpTo(100)
	if err != nil && err != io.EOF {
		t.Fatalf("ReadUpTo: %v", err)
	}
	if len(got) != 1 || got[0] != 0xFF {
		t.Fatalf("ReadUpTo = %v, want truncated to [0xFF]", got)
	}
}

func TestReadUpToNoHeaderReturnsAll(t *testing.T) {
	p := New(bytes.NewReader([]byte{1, 2, 3, 4, 5}), sqfh)
	got, _ := p.ReadUpTo(3)
	if len(got) != 3 {
		t.Fatalf("ReadUpTo(3) returned %d bytes, want 3", len(got))
	}
}

func TestReadUpToEOF(t *testing.T) {
	p := New(bytes.NewReader(nil), sqfh)
	got, err := p.ReadUpTo(10)
	if len(got) != 0 {
		t.Fatalf("expected 0 bytes at EOF, got %d", len(got))
	}
	if err == nil {
		t.Fatal("expected an error/EOF signal at end of stream")
	}
}

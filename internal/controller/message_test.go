package controller

import "testing"

func TestRxDescriptorChunkedRead(t *testing.T) {
	payload := []byte("ABCDEFGHIJ") // 10 bytes
	rx := rxDescriptor{
		buffer:       payload,
		totalSize:    len(payload),
		pending:      len(payload),
		receiveReady: true,
	}

	buf := make([]byte, 4)
	var got []byte

	n := rx.read(buf)
	got = append(got, buf[:n]...)
	if n != 4 {
		t.Fatalf("expected first read of 4 bytes, got %d", n)
	}
	if !rx.receiveReady {
		t.Fatal("descriptor should still be ready for more reads")
	}

	n = rx.read(buf)
	got = append(got, buf[:n]...)
	if n != 4 {
		t.Fatalf("expected second read of 4 bytes, got %d", n)
	}

	n = rx.read(buf)
	got = append(got, buf[:n]...)
	if n != 2 {
		t.Fatalf("expected final partial read of 2 bytes, got %d", n)
	}
	if rx.receiveReady {
		t.Fatal("descriptor should no longer be ready after final partial read")
	}

	if string(got) != string(payload) {
		t.Fatalf("reassembled payload mismatch: got %q want %q", got, payload)
	}

	if n := rx.read(buf); n != 0 {
		t.Fatalf("subsequent read after completion should return 0 bytes, got %d", n)
	}
}

func TestRxDescriptorSingleReadWhenBufferLargeEnough(t *testing.T) {
	payload := []byte("hello")
	rx := rxDescriptor{
		buffer:       payload,
		totalSize:    len(payload),
		pending:      len(payload),
		receiveReady: true,
	}

	buf := make([]byte, 32)
	n := rx.read(buf)
	if n != len(payload) {
		t.Fatalf("expected full payload read in one call, got %d bytes", n)
	}
	if rx.receiveReady {
		t.Fatal("descriptor should be complete after a single read covering everything")
	}
}

func TestRxDescriptorNotReady(t *testing.T) {
	var rx rxDescriptor
	buf := make([]byte, 4)
	if n := rx.read(buf); n != 0 {
		t.Fatalf("reading from a not-ready descriptor should return 0, got %d", n)
	}
}

package snapshot

import (
	"bufio"
	"bytes"
	"testing"

	"iprange/pkg/model"
)

func ivs() []model.Interval {
	return []model.Interval{
		{Addr: 0x0a000000, Broadcast: 0x0a0000ff},
		{Addr: 0x0b000000, Broadcast: 0x0b000000},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	meta := Meta{Optimized: true, Lines: 3, UniqueIPs: 257}

	if err := Write(&buf, ivs(), meta); err != nil {
		t.Fatalf("Write: %v", err)
	}

	br := bufio.NewReader(&buf)
	gotIvs, gotMeta, err := Read(br, false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if len(gotIvs) != len(ivs()) {
		t.Fatalf("got %d intervals, want %d", len(gotIvs), len(ivs()))
	}
	for i, want := range ivs() {
		if gotIvs[i] != want {
			t.Errorf("interval %d = %+v, want %+v", i, gotIvs[i], want)
		}
	}
	if gotMeta.Optimized != meta.Optimized {
		t.Errorf("Optimized = %v, want %v", gotMeta.Optimized, meta.Optimized)
	}
	if gotMeta.Lines != meta.Lines {
		t.Errorf("Lines = %d, want %d", gotMeta.Lines, meta.Lines)
	}
	if gotMeta.UniqueIPs != meta.UniqueIPs {
		t.Errorf("UniqueIPs = %d, want %d", gotMeta.UniqueIPs, meta.UniqueIPs)
	}
}

func TestWriteReadRoundTripCompressed(t *testing.T) {
	var buf bytes.Buffer
	meta := Meta{Optimized: false, Compressed: true, Lines: 2, UniqueIPs: 257}

	if err := Write(&buf, ivs(), meta); err != nil {
		t.Fatalf("Write: %v", err)
	}

	br := bufio.NewReader(&buf)
	gotIvs, gotMeta, err := Read(br, false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !gotMeta.Compressed {
		t.Errorf("Compressed = false, want true")
	}
	if gotMeta.Optimized {
		t.Errorf("Optimized = true, want false")
	}
	for i, want := range ivs() {
		if gotIvs[i] != want {
			t.Errorf("interval %d = %+v, want %+v", i, gotIvs[i], want)
		}
	}
}

func TestLooksLikeHeader(t *testing.T) {
	if !LooksLikeHeader(Header) {
		t.Fatalf("LooksLikeHeader(Header) = false, want true")
	}
	if LooksLikeHeader("10.0.0.0/24\n") {
		t.Fatalf("LooksLikeHeader(text line) = true, want false")
	}
}

func TestReadRejectsBadByteCount(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, ivs(), Meta{Optimized: true, Lines: 2, UniqueIPs: 257}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	corrupt := bytes.Replace(buf.Bytes(), []byte("bytes 20\n"), []byte("bytes 21\n"), 1)
	if bytes.Equal(corrupt, buf.Bytes()) {
		t.Fatalf("test setup: expected byte count line to be rewritten")
	}

	br := bufio.NewReader(bytes.NewReader(corrupt))
	if _, _, err := Read(br, false); err == nil {
		t.Fatalf("Read of corrupted byte count should fail")
	}
}

func TestWriteEmptyProducesNoOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil, Meta{Optimized: true}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("Write(empty) produced %d bytes, want 0", buf.Len())
	}
}

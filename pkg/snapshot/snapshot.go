// Package snapshot implements the binary v1.0 set format: a short plain
// text header followed by a native-endian record array. It is a direct
// port of ipset_load_binary_v10()/ipset_save_binary_v10() from the
// original iprange tool, including the exact header line text (so files
// written by either implementation stay mutually loadable) and the
// endianness guard word.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"iprange/pkg/model"
)

// Header is the exact first line of a v1.0 snapshot.
const Header = "iprange binary format v1.0\n"

// endianMarker is written as a single native-order uint32 immediately
// after the text header; a reader that decodes it as anything other
// than this value is running on a host with different byte order than
// the writer.
const endianMarker uint32 = 0x1A2B3C4D

// recordSize is the encoded size, in bytes, of one interval record:
// two uint32 fields in the host's native byte order.
const recordSize = 8

// Meta carries the snapshot's header fields, returned by Read alongside
// (not instead of) the decoded interval payload.
type Meta struct {
	Optimized  bool
	Compressed bool
	Records    uint64
	Lines      uint64
	UniqueIPs  uint64
}

// Write serializes optimized as a v1.0 snapshot: header lines, the
// endianness marker, then one 8-byte record per interval in iv's order.
// Writing an empty interval slice produces no output at all, matching
// the original's "don't emit anything for an empty set" behavior. When
// meta.Compressed is set, a "compression snappy\n" line follows the
// format header and the endian marker plus every record is written as
// one snappy-compressed block instead of raw bytes.
func Write(w io.Writer, ivs []model.Interval, meta Meta) error {
	if len(ivs) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)

	fmt.Fprint(bw, Header)
	if meta.Compressed {
		fmt.Fprint(bw, "compression snappy\n")
	}
	if meta.Optimized {
		fmt.Fprint(bw, "optimized\n")
	} else {
		fmt.Fprint(bw, "non-optimized\n")
	}
	fmt.Fprintf(bw, "record size %d\n", recordSize)
	fmt.Fprintf(bw, "records %d\n", len(ivs))
	fmt.Fprintf(bw, "bytes %d\n", uint64(recordSize*len(ivs))+4)
	fmt.Fprintf(bw, "lines %d\n", meta.Lines)
	fmt.Fprintf(bw, "unique ips %d\n", meta.UniqueIPs)

	payload := make([]byte, 0, 4+recordSize*len(ivs))
	var marker [4]byte
	binary.NativeEndian.PutUint32(marker[:], endianMarker)
	payload = append(payload, marker[:]...)

	var rec [recordSize]byte
	for _, iv := range ivs {
		binary.NativeEndian.PutUint32(rec[0:4], iv.Addr)
		binary.NativeEndian.PutUint32(rec[4:8], iv.Broadcast)
		payload = append(payload, rec[:]...)
	}

	if err := writePayload(bw, payload, meta.Compressed); err != nil {
		return err
	}

	return bw.Flush()
}

// Read parses a v1.0 snapshot. headerConsumed should be true when the
// caller has already peeked and matched the first header line (the
// original tool's ipset_load() does this to disambiguate a binary
// snapshot from a text file by its first line, and passes
// first_line_missing=1 into the loader so it isn't read twice).
func Read(r *bufio.Reader, headerConsumed bool) ([]model.Interval, Meta, error) {
	var meta Meta

	if !headerConsumed {
		line, err := r.ReadString('\n')
		if err != nil || line != Header {
			return nil, meta, fmt.Errorf("%w: expected binary header", model.ErrFormat)
		}
	}

	line, err := peekLine(r)
	if err == nil && line == "compression snappy\n" {
		_, _ = r.ReadString('\n')
		meta.Compressed = true
	}

	line, err = r.ReadString('\n')
	if err != nil {
		return nil, meta, fmt.Errorf("%w: missing optimized flag line", model.ErrFormat)
	}
	switch line {
	case "optimized\n":
		meta.Optimized = true
	case "non-optimized\n":
		meta.Optimized = false
	default:
		return nil, meta, fmt.Errorf("%w: unexpected 2nd line %q", model.ErrFormat, line)
	}

	size, err := readPrefixedUint(r, "record size ")
	if err != nil {
		return nil, meta, err
	}
	if size != recordSize {
		return nil, meta, fmt.Errorf("%w: record size %d (expected %d)", model.ErrFormat, size, recordSize)
	}

	records, err := readPrefixedUint(r, "records ")
	if err != nil {
		return nil, meta, err
	}
	meta.Records = records

	bytesField, err := readPrefixedUint(r, "bytes ")
	if err != nil {
		return nil, meta, err
	}
	if bytesField != records*recordSize+4 {
		return nil, meta, fmt.Errorf("%w: byte count %d does not match %d records", model.ErrFormat, bytesField, records)
	}

	lines, err := readPrefixedUint(r, "lines ")
	if err != nil {
		return nil, meta, err
	}
	meta.Lines = lines

	uniqueIPs, err := readPrefixedUint(r, "unique ips ")
	if err != nil {
		return nil, meta, err
	}
	meta.UniqueIPs = uniqueIPs

	if uniqueIPs < records {
		return nil, meta, fmt.Errorf("%w: unique ips (%d) less than records (%d)", model.ErrFormat, uniqueIPs, records)
	}
	if lines < records {
		return nil, meta, fmt.Errorf("%w: lines (%d) less than records (%d)", model.ErrFormat, lines, records)
	}

	payload, err := readPayload(r, meta.Compressed)
	if err != nil {
		return nil, meta, err
	}
	if len(payload) != 4+int(records)*recordSize {
		return nil, meta, fmt.Errorf("%w: payload is %d bytes, expected %d", model.ErrFormat, len(payload), 4+int(records)*recordSize)
	}

	if binary.NativeEndian.Uint32(payload[0:4]) != endianMarker {
		return nil, meta, model.ErrEndianMismatch
	}

	ivs := make([]model.Interval, 0, records)
	for i := uint64(0); i < records; i++ {
		off := 4 + int(i)*recordSize
		ivs = append(ivs, model.Interval{
			Addr:      binary.NativeEndian.Uint32(payload[off : off+4]),
			Broadcast: binary.NativeEndian.Uint32(payload[off+4 : off+8]),
		})
	}

	return ivs, meta, nil
}

// peekLine returns the next line without consuming it from r.
func peekLine(r *bufio.Reader) (string, error) {
	for n := 64; ; n *= 2 {
		b, err := r.Peek(n)
		if i := bytes.IndexByte(b, '\n'); i >= 0 {
			return string(b[:i+1]), nil
		}
		if err != nil {
			return string(b), err
		}
	}
}

// readPrefixedUint reads one text line of the form "<prefix><digits>\n"
// and parses the digits, as the fixed-layout header lines require.
func readPrefixedUint(r *bufio.Reader, prefix string) (uint64, error) {
	line, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, prefix) {
		return 0, fmt.Errorf("%w: expected line starting %q, got %q", model.ErrFormat, prefix, line)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(line[len(prefix):]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid integer in %q", model.ErrFormat, line)
	}
	return n, nil
}

// LooksLikeHeader reports whether the given first line of a file is the
// binary v1.0 header, the same sniff ipset_load() performs to choose
// between the text and binary loaders.
func LooksLikeHeader(firstLine string) bool {
	return firstLine == Header
}

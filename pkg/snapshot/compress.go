package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"

	"iprange/pkg/model"
)

// writePayload writes the endian marker + record bytes either raw, or,
// when compressed is true, as a snappy block prefixed with its encoded
// length (a native-order uint32), so readPayload knows exactly how many
// compressed bytes to consume.
func writePayload(w io.Writer, payload []byte, compressed bool) error {
	if !compressed {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("%w: %v", model.ErrIO, err)
		}
		return nil
	}

	block := snappy.Encode(nil, payload)

	var lenBuf [4]byte
	binary.NativeEndian.PutUint32(lenBuf[:], uint32(len(block)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("%w: %v", model.ErrIO, err)
	}
	if _, err := w.Write(block); err != nil {
		return fmt.Errorf("%w: %v", model.ErrIO, err)
	}
	return nil
}

// readPayload reads back whatever writePayload produced.
func readPayload(r io.Reader, compressed bool) ([]byte, error) {
	if !compressed {
		payload, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrIO, err)
		}
		return payload, nil
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated compressed block length", model.ErrFormat)
	}
	blockLen := binary.NativeEndian.Uint32(lenBuf[:])

	block := make([]byte, blockLen)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, fmt.Errorf("%w: truncated compressed block", model.ErrFormat)
	}

	payload, err := snappy.Decode(nil, block)
	if err != nil {
		return nil, fmt.Errorf("%w: snappy decode: %v", model.ErrFormat, err)
	}
	return payload, nil
}

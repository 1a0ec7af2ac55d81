// Package recordcodec implements the marker-framed record format the engine
// appends to its data file: a fixed four-byte marker, a length word, and a
// payload. Framing is deliberately tolerant of a torn trailing record and of
// stray bytes preceding the marker, so the storage engine can always resume
// a batch read at a well-defined point.
//
// Grounded on original_source/vfs/src/vfs/serializer.rs (START_MARKER,
// save_vector, load_vectors byte-by-byte rescan) and the teacher's simpler
// fixed-width record layout in internal/storage/vector_storage.go.
package recordcodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Marker prefixes every record written to the data file.
var Marker = [4]byte{0xDE, 0xAD, 0xBE, 0xEF}

// LengthWidth is the width, in bytes, of the length word following Marker.
// Fixed at 8 (u64 little-endian) rather than the native platform word width
// original_source uses, so the format is portable across architectures.
const LengthWidth = 8

// HeaderSize is the number of bytes preceding a record's payload.
const HeaderSize = len(Marker) + LengthWidth

// Encode frames payload with Marker and its little-endian length.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out, Marker[:]...)
	var lenBuf [LengthWidth]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)
	return out
}

// WriteTo appends the framed record for payload to w.
func WriteTo(w io.Writer, payload []byte) (int, error) {
	return w.Write(Encode(payload))
}

// Result describes the outcome of scanning a single record out of a buffer.
type Result struct {
	Payload []byte
	// Consumed is the number of bytes read from the start of the scan,
	// including any skipped garbage preceding the marker. Callers advance
	// their cursor by Consumed on success.
	Consumed int
}

// ErrIncomplete indicates the buffer does not (yet) contain a full record
// starting at or after the scan's start; the cursor_unchanged contract
// applies — callers must retry with more bytes appended, not advance past
// the failure point.
var ErrIncomplete = fmt.Errorf("recordcodec: incomplete record")

// ScanOne finds the next framed record in buf, tolerating and skipping any
// bytes preceding a valid marker. It returns ErrIncomplete if no complete
// record is available, in which case the caller must not advance its cursor:
// more bytes must be appended to buf and the scan retried from the same
// starting offset (cursor_unchanged, per the original torn-record contract).
func ScanOne(buf []byte) (Result, error) {
	idx := bytes.Index(buf, Marker[:])
	if idx < 0 {
		return Result{}, ErrIncomplete
	}
	rest := buf[idx+len(Marker):]
	if len(rest) < LengthWidth {
		return Result{}, ErrIncomplete
	}
	n := binary.LittleEndian.Uint64(rest[:LengthWidth])
	payloadStart := idx + HeaderSize
	payloadEnd := payloadStart + int(n)
	if payloadEnd < payloadStart || payloadEnd > len(buf) {
		return Result{}, ErrIncomplete
	}
	return Result{
		Payload:  buf[payloadStart:payloadEnd],
		Consumed: payloadEnd,
	}, nil
}

// ScanAll scans as many complete records as are present in buf, stopping
// (without error) at the first incomplete or torn record. It returns the
// decoded payloads and the number of bytes consumed from buf's start; the
// caller resumes its next read at that offset unchanged, exactly as if the
// remaining bytes had never been scanned.
func ScanAll(buf []byte, max int) (payloads [][]byte, consumed int) {
	for max <= 0 || len(payloads) < max {
		res, err := ScanOne(buf[consumed:])
		if err != nil {
			break
		}
		cp := make([]byte, len(res.Payload))
		copy(cp, res.Payload)
		payloads = append(payloads, cp)
		consumed += res.Consumed
	}
	return payloads, consumed
}

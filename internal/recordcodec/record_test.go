package recordcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanOneRoundTrip(t *testing.T) {
	framed := Encode([]byte("hello"))
	res, err := ScanOne(framed)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), res.Payload)
	require.Equal(t, len(framed), res.Consumed)
}

func TestScanOneToleratesLeadingGarbage(t *testing.T) {
	garbage := []byte{0x01, 0x02, 0x03, byte(Marker[0])}
	buf := append(garbage, Encode([]byte("payload"))...)

	res, err := ScanOne(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), res.Payload)
}

func TestScanOneReportsIncompleteOnTornLength(t *testing.T) {
	framed := Encode([]byte("x"))
	torn := framed[:len(Marker)+3] // marker present, length word truncated

	_, err := ScanOne(torn)
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestScanOneReportsIncompleteOnTornPayload(t *testing.T) {
	framed := Encode([]byte("0123456789"))
	torn := framed[:len(framed)-3]

	_, err := ScanOne(torn)
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestScanAllStopsAtTornTrailingRecord(t *testing.T) {
	var buf []byte
	buf = append(buf, Encode([]byte("one"))...)
	buf = append(buf, Encode([]byte("two"))...)
	full := append(buf, Encode([]byte("three"))...)
	torn := full[:len(full)-2]

	payloads, consumed := ScanAll(torn, 0)
	require.Len(t, payloads, 2)
	require.Equal(t, []byte("one"), payloads[0])
	require.Equal(t, []byte("two"), payloads[1])
	require.Equal(t, len(buf), consumed)
}

func TestScanAllRespectsMax(t *testing.T) {
	var buf []byte
	for i := 0; i < 5; i++ {
		buf = append(buf, Encode([]byte{byte(i)})...)
	}
	payloads, _ := ScanAll(buf, 2)
	require.Len(t, payloads, 2)
}

func TestScanAllResumesFromConsumedOffset(t *testing.T) {
	var buf []byte
	buf = append(buf, Encode([]byte("a"))...)
	buf = append(buf, Encode([]byte("b"))...)

	first, consumed := ScanAll(buf, 1)
	require.Equal(t, [][]byte{[]byte("a")}, first)

	second, _ := ScanAll(buf[consumed:], 0)
	require.Equal(t, [][]byte{[]byte("b")}, second)
}

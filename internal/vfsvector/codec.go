package vfsvector

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Encode serializes v into the stable, self-describing binary payload format
// from spec §6: variant tag, id, then either the dense float32 array or the
// quantized int8 array plus scale, then length-prefixed-string metadata.
// encode(decode(x)) == x for every value (spec §8 property 1).
func Encode(v Value) []byte {
	buf := make([]byte, 0, 64+4*v.Dim())
	buf = append(buf, byte(v.Kind))
	buf = appendU64(buf, v.ID)

	switch v.Kind {
	case KindDense:
		buf = appendU32(buf, uint32(len(v.Dense)))
		for _, f := range v.Dense {
			buf = appendU32(buf, math.Float32bits(f))
		}
	case KindQuantized:
		buf = appendU32(buf, uint32(len(v.Int8)))
		for _, q := range v.Int8 {
			buf = append(buf, byte(q))
		}
		buf = appendU32(buf, math.Float32bits(v.Scale))
	}

	buf = appendString(buf, v.Metadata.ManagerName)
	buf = appendString(buf, v.Metadata.Name)
	buf = appendU32(buf, uint32(len(v.Metadata.Tags)))
	for _, t := range v.Metadata.Tags {
		buf = appendString(buf, t)
	}
	buf = appendString(buf, v.Metadata.CreatedAt.UTC().Format(time.RFC3339Nano))

	return buf
}

// Decode is the inverse of Encode. It never partially mutates its result: on
// any malformed input it returns an error and a zero Value.
func Decode(buf []byte) (Value, error) {
	r := &reader{buf: buf}

	kindByte, err := r.byte()
	if err != nil {
		return Value{}, fmt.Errorf("vfsvector: decode kind: %w", err)
	}
	kind := Kind(kindByte)

	id, err := r.u64()
	if err != nil {
		return Value{}, fmt.Errorf("vfsvector: decode id: %w", err)
	}

	v := Value{ID: id, Kind: kind}

	switch kind {
	case KindDense:
		n, err := r.u32()
		if err != nil {
			return Value{}, fmt.Errorf("vfsvector: decode dense length: %w", err)
		}
		v.Dense = make([]float32, n)
		for i := range v.Dense {
			bits, err := r.u32()
			if err != nil {
				return Value{}, fmt.Errorf("vfsvector: decode dense[%d]: %w", i, err)
			}
			v.Dense[i] = math.Float32frombits(bits)
		}
	case KindQuantized:
		n, err := r.u32()
		if err != nil {
			return Value{}, fmt.Errorf("vfsvector: decode quantized length: %w", err)
		}
		v.Int8 = make([]int8, n)
		for i := range v.Int8 {
			b, err := r.byte()
			if err != nil {
				return Value{}, fmt.Errorf("vfsvector: decode quantized[%d]: %w", i, err)
			}
			v.Int8[i] = int8(b)
		}
		bits, err := r.u32()
		if err != nil {
			return Value{}, fmt.Errorf("vfsvector: decode scale: %w", err)
		}
		v.Scale = math.Float32frombits(bits)
	default:
		return Value{}, fmt.Errorf("vfsvector: unknown variant tag %d", kindByte)
	}

	manager, err := r.string()
	if err != nil {
		return Value{}, fmt.Errorf("vfsvector: decode manager_name: %w", err)
	}
	name, err := r.string()
	if err != nil {
		return Value{}, fmt.Errorf("vfsvector: decode name: %w", err)
	}
	tagCount, err := r.u32()
	if err != nil {
		return Value{}, fmt.Errorf("vfsvector: decode tag count: %w", err)
	}
	tags := make([]string, tagCount)
	for i := range tags {
		tags[i], err = r.string()
		if err != nil {
			return Value{}, fmt.Errorf("vfsvector: decode tags[%d]: %w", i, err)
		}
	}
	createdRaw, err := r.string()
	if err != nil {
		return Value{}, fmt.Errorf("vfsvector: decode created_at: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdRaw)
	if err != nil {
		return Value{}, fmt.Errorf("vfsvector: parse created_at: %w", err)
	}

	v.Metadata = Metadata{ManagerName: manager, Name: name, Tags: tags, CreatedAt: created}
	if !r.atEnd() {
		return Value{}, fmt.Errorf("vfsvector: %d trailing bytes after decode", r.remaining())
	}
	return v, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	return append(buf, s...)
}

// reader walks buf front-to-back, failing closed on truncation.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }
func (r *reader) atEnd() bool    { return r.pos == len(r.buf) }

func (r *reader) byte() (byte, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("unexpected end of buffer")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, fmt.Errorf("unexpected end of buffer")
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, fmt.Errorf("unexpected end of buffer")
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) string() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if r.remaining() < int(n) {
		return "", fmt.Errorf("unexpected end of buffer")
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

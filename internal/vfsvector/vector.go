// Package vfsvector implements the polymorphic vector value stored by the
// engine: a dense float32 sequence or a quantized int8 sequence plus scale,
// always tagged with an identifier and metadata.
//
// Grounded on original_source/vfs/src/vfs/vector.rs (Vector/VectorMetadata,
// from_vec/from_simd constructors) and the teacher's float32 wire codec in
// internal/storage/vector_storage.go (float32ArrayToBytes/bytesToFloat32Array).
package vfsvector

import (
	"fmt"
	"math"
	"time"
)

// Kind distinguishes the two vector value variants.
type Kind uint8

const (
	KindDense Kind = iota
	KindQuantized
)

func (k Kind) String() string {
	if k == KindQuantized {
		return "quantized"
	}
	return "dense"
}

// QuantizedTag is added to Metadata.Tags whenever a vector is quantized, and
// stripped on dequantization.
const QuantizedTag = "quantized"

// DefaultScale is used by Quantize when the caller supplies no explicit scale.
const DefaultScale float32 = 127

// Metadata carries the opaque, engine-agnostic fields every vector record
// keeps alongside its values.
type Metadata struct {
	ManagerName string
	Name        string
	Tags        []string
	CreatedAt   time.Time
}

func (m Metadata) hasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (m Metadata) withTag(tag string) Metadata {
	if m.hasTag(tag) {
		return m
	}
	out := m
	out.Tags = append(append([]string{}, m.Tags...), tag)
	return out
}

func (m Metadata) withoutTag(tag string) Metadata {
	if !m.hasTag(tag) {
		return m
	}
	kept := make([]string, 0, len(m.Tags))
	for _, t := range m.Tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	out := m
	out.Tags = kept
	return out
}

// Value is exactly one of Dense or Quantized, selected by Kind.
type Value struct {
	ID       uint64
	Kind     Kind
	Dense    []float32
	Int8     []int8
	Scale    float32
	Metadata Metadata
}

// ErrEmptyVector is returned by constructors given a zero-length payload.
var ErrEmptyVector = fmt.Errorf("vfsvector: vector data cannot be empty")

// NewDense builds a dense vector value. Rejects empty input per spec §4.2.
func NewDense(id uint64, data []float32, meta Metadata) (Value, error) {
	if len(data) == 0 {
		return Value{}, ErrEmptyVector
	}
	cp := append([]float32{}, data...)
	return Value{ID: id, Kind: KindDense, Dense: cp, Metadata: meta}, nil
}

// Quantize converts a dense vector into the quantized variant. When scale is
// nil, DefaultScale is used and x is clamped to [-1,1] before scaling; when a
// scale is supplied, no clamp is applied. Tags gain the "quantized" marker.
func Quantize(v Value, scale *float32) (Value, error) {
	if v.Kind != KindDense {
		return Value{}, fmt.Errorf("vfsvector: Quantize requires a dense value")
	}
	if len(v.Dense) == 0 {
		return Value{}, ErrEmptyVector
	}

	s := DefaultScale
	clamp := true
	if scale != nil {
		s = *scale
		clamp = false
	}
	if s <= 0 {
		return Value{}, fmt.Errorf("vfsvector: scale must be positive, got %v", s)
	}

	q := make([]int8, len(v.Dense))
	for i, x := range v.Dense {
		xx := x
		if clamp {
			if xx > 1 {
				xx = 1
			} else if xx < -1 {
				xx = -1
			}
		}
		r := math.Round(float64(xx) * float64(s))
		if r > 127 {
			r = 127
		} else if r < -128 {
			r = -128
		}
		q[i] = int8(r)
	}

	return Value{
		ID:       v.ID,
		Kind:     KindQuantized,
		Int8:     q,
		Scale:    s,
		Metadata: v.Metadata.withTag(QuantizedTag),
	}, nil
}

// Dequantize projects a quantized value back to dense float32, stripping the
// "quantized" tag.
func Dequantize(v Value) (Value, error) {
	if v.Kind != KindQuantized {
		return Value{}, fmt.Errorf("vfsvector: Dequantize requires a quantized value")
	}
	dense := make([]float32, len(v.Int8))
	for i, q := range v.Int8 {
		dense[i] = float32(q) / v.Scale
	}
	return Value{
		ID:       v.ID,
		Kind:     KindDense,
		Dense:    dense,
		Metadata: v.Metadata.withoutTag(QuantizedTag),
	}, nil
}

// Dim reports the vector's dimensionality regardless of variant.
func (v Value) Dim() int {
	if v.Kind == KindQuantized {
		return len(v.Int8)
	}
	return len(v.Dense)
}

// AsFloat32 projects either variant to a dense float32 view, used by every
// distance kernel and the HNSW graph. Quantized vectors are dequantized
// on read for distance purposes (spec Non-goals: no quantization-aware
// distance math in the index).
func (v Value) AsFloat32() []float32 {
	if v.Kind == KindDense {
		return v.Dense
	}
	out := make([]float32, len(v.Int8))
	for i, q := range v.Int8 {
		out[i] = float32(q) / v.Scale
	}
	return out
}

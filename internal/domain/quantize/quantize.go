// Package quantize packs float patch embeddings into sign-bit codes for hamming search.
package quantize

import (
	"encoding/hex"
	"fmt"

	"github.com/kefio/ColPali-Workbench/internal/domain"
)

// Code is a packed binary embedding: one bit per dimension, MSB first.
type Code []byte

// Quantize sets bit i when v[i] > 0. Bit 0 of the vector is the high bit of byte 0.
// An empty vector yields an empty code.
func Quantize(v []float32) (Code, error) {
	if len(v)%8 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 8: %w", len(v), domain.ErrInvalidVectorLength)
	}
	code := make(Code, len(v)/8)
	for i, f := range v {
		if f > 0 {
			code[i/8] |= 0x80 >> (i % 8)
		}
	}
	return code, nil
}

// QuantizeAll quantizes every patch, preserving order. The error names the first bad patch.
func QuantizeAll(patches [][]float32) ([]Code, error) {
	codes := make([]Code, len(patches))
	for i, p := range patches {
		c, err := Quantize(p)
		if err != nil {
			return nil, &PatchError{Index: i, Err: err}
		}
		codes[i] = c
	}
	return codes, nil
}

// PatchError reports which patch failed quantization.
type PatchError struct {
	Index int
	Err   error
}

func (e *PatchError) Error() string { return fmt.Sprintf("patch %d: %v", e.Index, e.Err) }

func (e *PatchError) Unwrap() error { return e.Err }

// Hex returns the feed encoding of the code.
func (c Code) Hex() string { return hex.EncodeToString(c) }

// Int8s returns the code as signed bytes, the cell type of tensor<int8> query inputs.
func (c Code) Int8s() []int8 {
	out := make([]int8, len(c))
	for i, b := range c {
		out[i] = int8(b)
	}
	return out
}

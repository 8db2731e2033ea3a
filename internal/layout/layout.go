// Package layout computes instance sizes and private-region offsets.
//
// An instance occupies [align(instance size)][private A0]...[private An] where
// A0 is the root-most ancestor with private data and An the leaf.
package layout

import (
	"fmt"
	"math"

	"fortio.org/safecast"
)

// Align is the alignment of instance structs and private regions.
const Align = 8

// MaxPrivateSize bounds a single type's private region.
const MaxPrivateSize = math.MaxUint16

// AlignUp rounds n up to Align.
func AlignUp(n uint32) (uint32, error) {
	if n > math.MaxUint32-(Align-1) {
		return 0, fmt.Errorf("size %d overflows alignment", n)
	}
	return (n + Align - 1) &^ (Align - 1), nil
}

// PrivateSize validates and aligns a requested private region size.
func PrivateSize(size int) (uint32, error) {
	if size <= 0 {
		return 0, fmt.Errorf("private size %d must be positive", size)
	}
	if size > MaxPrivateSize {
		return 0, fmt.Errorf("private size %d exceeds %d", size, MaxPrivateSize)
	}
	n, err := safecast.Conv[uint32](size)
	if err != nil {
		return 0, err
	}
	return AlignUp(n)
}

// Add returns a+b or an error on overflow.
func Add(a, b uint32) (uint32, error) {
	if a > math.MaxUint32-b {
		return 0, fmt.Errorf("size %d + %d overflows", a, b)
	}
	return a + b, nil
}

// Total returns the full allocation size for an instance.
func Total(instanceSize, privateTotal uint32) (uint32, error) {
	base, err := AlignUp(instanceSize)
	if err != nil {
		return 0, err
	}
	return Add(base, privateTotal)
}

// Offset returns where a private region starts inside an instance, given the
// accumulated private size of every region laid out before it.
func Offset(instanceSize, privateBefore uint32) (int, error) {
	total, err := Total(instanceSize, privateBefore)
	if err != nil {
		return 0, err
	}
	return safecast.Conv[int](total)
}

// Len converts a size to a slice length.
func Len(size uint32) (int, error) {
	return safecast.Conv[int](size)
}

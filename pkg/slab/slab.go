// Package slab provides hyperslab range and offset arithmetic for
// partitioned dataset I/O.
//
// A slab is a contiguous 1-D sub-range of a larger dataset. Each worker
// owns exactly one slab of the global source bank; the union of all slabs
// partitions the bank with no overlap and no gap. The package never
// computes a partitioning itself; it only describes and checks one.
package slab

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrOverlap    = errors.New("slab: ranges overlap")
	ErrGap        = errors.New("slab: ranges leave a gap")
	ErrOutOfRange = errors.New("slab: range exceeds total extent")
)

// Range is a contiguous 1-D selection of Count elements starting at Start.
type Range struct {
	Start int64
	Count int64
}

// End returns the exclusive upper bound of the range.
func (r Range) End() int64 { return r.Start + r.Count }

// Empty reports whether the range selects no elements.
func (r Range) Empty() bool { return r.Count == 0 }

// ByteOffset returns the byte position of the range start for elements of
// the given size, relative to the dataset payload origin.
func (r Range) ByteOffset(elemSize int64) int64 { return r.Start * elemSize }

// ByteLen returns the byte length of the range for elements of the given size.
func (r Range) ByteLen(elemSize int64) int64 { return r.Count * elemSize }

// SlotOffset computes the collective-stream byte offset for one rank's
// source-bank slot: base + recordSize*maxWork*rank.
//
// The multiplier is the fixed per-rank capacity (maxWork), not the rank's
// actual record count, so slots never overlap regardless of load imbalance.
// The unused tail of a slot is reserved slack; it is not validated against
// the written length.
func SlotOffset(base, recordSize, maxWork int64, rank int) int64 {
	return base + recordSize*maxWork*int64(rank)
}

// CheckPartition verifies that ranges partition [0, total) exactly: sorted
// by start they must tile the extent with no overlap and no gap. Empty
// ranges are permitted anywhere.
//
// This is a diagnostic for tests and tooling; the write path treats the
// partitioning as a precondition supplied by the load balancer.
func CheckPartition(ranges []Range, total int64) error {
	rs := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Count < 0 {
			return fmt.Errorf("slab: negative count %d", r.Count)
		}
		if r.Empty() {
			continue
		}
		if r.Start < 0 || r.End() > total {
			return fmt.Errorf("%w: [%d,%d) outside [0,%d)", ErrOutOfRange, r.Start, r.End(), total)
		}
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })

	next := int64(0)
	for _, r := range rs {
		if r.Start < next {
			return fmt.Errorf("%w: [%d,%d) intersects [..,%d)", ErrOverlap, r.Start, r.End(), next)
		}
		if r.Start > next {
			return fmt.Errorf("%w: [%d,%d) uncovered", ErrGap, next, r.Start)
		}
		next = r.End()
	}
	if next != total {
		return fmt.Errorf("%w: [%d,%d) uncovered", ErrGap, next, total)
	}
	return nil
}

// Package clockclass implements clock-class metadata and the
// cycles-to-nanoseconds conversion used by every timestamp-bearing
// message in the pipeline.
package clockclass

import (
	"math/bits"

	"github.com/google/uuid"

	"ssw-trace-core/internal/bterr"
)

// Origin identifies what epoch a clock class's zero cycle count is
// relative to.
type Origin int

const (
	OriginUnspecified Origin = iota
	OriginUnixEpoch
)

func (o Origin) String() string {
	if o == OriginUnixEpoch {
		return "unix-epoch"
	}
	return "unspecified"
}

// ClockClass is the canonical time base for a stream class: frequency,
// offset and origin. Cycle values are meaningless without one.
type ClockClass struct {
	Name         string
	FrequencyHz  uint64
	OffsetS      int64
	OffsetCycles int64
	Origin       Origin
	Precision    uint64
	UUID         uuid.UUID
	HasUUID      bool
}

// New builds a ClockClass, defaulting FrequencyHz to 1e9 (nanosecond
// clocks) when unset since that is the overwhelmingly common case.
func New(name string, frequencyHz uint64) *ClockClass {
	if frequencyHz == 0 {
		frequencyHz = 1_000_000_000
	}
	return &ClockClass{Name: name, FrequencyHz: frequencyHz}
}

const nsPerSecond = 1_000_000_000

// CyclesToNsFromOrigin converts a raw cycle count into nanoseconds from
// the clock class's origin:
//
//	ns = offset_s*1e9 + (cycles + offset_cycles)*1e9/frequency
//
// computed with overflow detection at each intermediate step rather than
// silently truncating or wrapping.
func CyclesToNsFromOrigin(cc *ClockClass, cycles uint64) (int64, error) {
	if cc.FrequencyHz == 0 {
		return 0, bterr.New(bterr.KindClockOverflow, bterr.ActorUnknown, "clockclass", "cycles_to_ns",
			"frequency is zero")
	}

	totalCycles, carry := addSignedToUnsigned(cycles, cc.OffsetCycles)
	if carry {
		return 0, bterr.New(bterr.KindClockOverflow, bterr.ActorUnknown, "clockclass", "cycles_to_ns",
			"cycles + offset_cycles underflowed below zero")
	}

	hi, lo := bits.Mul64(totalCycles, nsPerSecond)
	if hi >= cc.FrequencyHz {
		return 0, bterr.New(bterr.KindClockOverflow, bterr.ActorUnknown, "clockclass", "cycles_to_ns",
			"cycles*1e9 overflowed 128 bits for this frequency")
	}
	quo, _ := bits.Div64(hi, lo, cc.FrequencyHz)

	offsetNs, ok := mulCheckedInt64(cc.OffsetS, nsPerSecond)
	if !ok {
		return 0, bterr.New(bterr.KindClockOverflow, bterr.ActorUnknown, "clockclass", "cycles_to_ns",
			"offset_s*1e9 overflowed int64")
	}

	if quo > uint64(1<<63-1) {
		return 0, bterr.New(bterr.KindClockOverflow, bterr.ActorUnknown, "clockclass", "cycles_to_ns",
			"cycle contribution overflowed int64")
	}

	result, ok := addCheckedInt64(offsetNs, int64(quo))
	if !ok {
		return 0, bterr.New(bterr.KindClockOverflow, bterr.ActorUnknown, "clockclass", "cycles_to_ns",
			"final sum overflowed int64")
	}
	return result, nil
}

// addSignedToUnsigned adds a signed offset to an unsigned cycle count,
// reporting carry=true if the result would be negative.
func addSignedToUnsigned(base uint64, offset int64) (uint64, bool) {
	if offset >= 0 {
		sum, carry := bits.Add64(base, uint64(offset), 0)
		return sum, carry != 0
	}
	neg := uint64(-offset)
	if neg > base {
		return 0, true
	}
	return base - neg, false
}

// mulCheckedInt64 returns (a*b, true) unless the multiplication
// overflows int64, in which case it returns (0, false).
func mulCheckedInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	result := a * b
	if result/b != a {
		return 0, false
	}
	return result, true
}

// addCheckedInt64 returns (a+b, true) unless the addition overflows
// int64, in which case it returns (0, false).
func addCheckedInt64(a, b int64) (int64, bool) {
	result := a + b
	if (b > 0 && result < a) || (b < 0 && result > a) {
		return 0, false
	}
	return result, true
}

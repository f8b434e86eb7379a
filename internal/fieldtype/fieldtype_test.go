package fieldtype

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ssw-trace-core/internal/clockclass"
)

func TestIntegerValidateRejectsBadSize(t *testing.T) {
	ft := NewInteger("bad", 0, false, BaseDecimal, EncodingNone)
	ft.Alignment = 1
	require.Error(t, ft.Validate())
}

func TestSignedIntegerRejectsMappedClockClass(t *testing.T) {
	ft := NewInteger("i", 32, true, BaseDecimal, EncodingNone)
	ft.Alignment = 8
	cc := clockclass.New("monotonic", 1_000_000_000)
	err := ft.SetMappedClockClass(cc)
	require.Error(t, err)
}

func TestUnsignedIntegerAcceptsMappedClockClass(t *testing.T) {
	ft := NewInteger("i", 32, false, BaseDecimal, EncodingNone)
	ft.Alignment = 8
	cc := clockclass.New("monotonic", 1_000_000_000)
	require.NoError(t, ft.SetMappedClockClass(cc))
	require.NoError(t, ft.Validate())
}

func TestFloatValidateRejectsUnsupportedShape(t *testing.T) {
	ft := NewFloat("f", 10, 30)
	ft.Alignment = 1
	require.Error(t, ft.Validate())

	ft2 := NewFloat("f2", 11, 53)
	ft2.Alignment = 1
	require.NoError(t, ft2.Validate())
}

func TestStructRejectsDuplicateFieldNames(t *testing.T) {
	st := NewStruct("s")
	i8 := NewInteger("i8", 8, false, BaseDecimal, EncodingNone)
	i8.Alignment = 8
	require.NoError(t, st.AddField("a", i8))
	err := st.AddField("a", i8)
	require.Error(t, err)
}

func TestStructRejectsSynthesizedUnderscoreAlias(t *testing.T) {
	st := NewStruct("s")
	i8 := NewInteger("i8", 8, false, BaseDecimal, EncodingNone)
	i8.Alignment = 8
	require.NoError(t, st.AddField("name", i8))
	err := st.AddField("_name", i8)
	require.Error(t, err)
}

func TestStructAlignmentIsMaxOfChildren(t *testing.T) {
	st := NewStruct("s")
	i8 := NewInteger("i8", 8, false, BaseDecimal, EncodingNone)
	i8.Alignment = 8
	i64 := NewInteger("i64", 64, false, BaseDecimal, EncodingNone)
	i64.Alignment = 32
	require.NoError(t, st.AddField("a", i8))
	require.NoError(t, st.AddField("b", i64))
	st.Freeze()
	require.Equal(t, uint(32), st.Alignment)
}

func TestEnumFreezeComputesHasOverlappingRanges(t *testing.T) {
	container := NewInteger("c", 8, false, BaseDecimal, EncodingNone)
	container.Alignment = 8
	e := NewEnum("e", container)
	require.NoError(t, e.AddMapping("a", Range{ULo: 0, UHi: 5}))
	require.NoError(t, e.AddMapping("b", Range{ULo: 4, UHi: 10}))
	e.Freeze()
	require.True(t, e.HasOverlappingRanges)
}

func TestEnumFreezeNoOverlap(t *testing.T) {
	container := NewInteger("c", 8, false, BaseDecimal, EncodingNone)
	container.Alignment = 8
	e := NewEnum("e", container)
	require.NoError(t, e.AddMapping("a", Range{ULo: 0, UHi: 5}))
	require.NoError(t, e.AddMapping("b", Range{ULo: 6, UHi: 10}))
	e.Freeze()
	require.False(t, e.HasOverlappingRanges)
}

func TestVariantArmMustMatchTagMapping(t *testing.T) {
	container := NewInteger("c", 8, false, BaseDecimal, EncodingNone)
	container.Alignment = 8
	tag := NewEnum("tag", container)
	require.NoError(t, tag.AddMapping("a", Range{ULo: 0, UHi: 0}))
	tag.Freeze()

	v := NewVariant("v", "tagfield", tag)
	i32 := NewInteger("i32", 32, false, BaseDecimal, EncodingNone)
	i32.Alignment = 8
	require.NoError(t, v.AddArm("nonexistent", i32))
	require.Error(t, v.Validate())
}

func TestCopyStartsUnfrozen(t *testing.T) {
	i8 := NewInteger("i8", 8, false, BaseDecimal, EncodingNone)
	i8.Alignment = 8
	i8.Freeze()
	cp := i8.Copy()
	require.False(t, cp.Frozen())
}

func TestCompareDeepEquality(t *testing.T) {
	a := NewInteger("i", 32, false, BaseDecimal, EncodingNone)
	a.Alignment = 8
	b := NewInteger("i", 32, false, BaseDecimal, EncodingNone)
	b.Alignment = 8
	require.True(t, a.Compare(b))

	c := NewInteger("i", 16, false, BaseDecimal, EncodingNone)
	c.Alignment = 8
	require.False(t, a.Compare(c))
}

func TestSerializeIntegerProducesTSDL(t *testing.T) {
	i32 := NewInteger("i32", 32, true, BaseDecimal, EncodingNone)
	i32.Alignment = 8
	var sb strings.Builder
	require.NoError(t, i32.Serialize(&sb, 0))
	require.Contains(t, sb.String(), "integer {")
	require.Contains(t, sb.String(), "size = 32")
}

func TestValidateIdempotentOnFrozenNode(t *testing.T) {
	i32 := NewInteger("i32", 32, false, BaseDecimal, EncodingNone)
	i32.Alignment = 8
	i32.Freeze()
	require.NoError(t, i32.Validate())
	require.NoError(t, i32.Validate())
}

package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapInsertRejectsDuplicate(t *testing.T) {
	m := Map()
	require.NoError(t, m.Insert("a", S64(1)))
	err := m.Insert("a", S64(2))
	require.Error(t, err)
}

func TestMapExtendOverwritesAndPreservesOrder(t *testing.T) {
	base := Map()
	require.NoError(t, base.Insert("a", S64(1)))
	require.NoError(t, base.Insert("b", S64(2)))

	other := Map()
	require.NoError(t, other.Insert("b", S64(20)))
	require.NoError(t, other.Insert("c", S64(3)))

	base.Extend(other)
	require.Equal(t, []string{"a", "b", "c"}, base.Keys())

	bv, ok := base.Get("b")
	require.True(t, ok)
	require.Equal(t, int64(20), bv.AsS64())
}

func TestFreezeIsIdempotentAndRecursive(t *testing.T) {
	inner := Array()
	inner.Append(S64(1))
	outer := Map()
	require.NoError(t, outer.Insert("inner", inner))

	outer.Freeze()
	require.True(t, outer.Frozen())
	require.True(t, inner.Frozen())

	require.NotPanics(t, func() { outer.Freeze() })
	require.Panics(t, func() { inner.Append(S64(2)) })
}

func TestCopyStartsUnfrozenRegardlessOfSource(t *testing.T) {
	src := Array()
	src.Append(S64(1))
	src.Freeze()

	cp := src.Copy()
	require.False(t, cp.Frozen())
	require.NotPanics(t, func() { cp.Append(S64(2)) })
	require.Len(t, src.AsArray(), 1)
}

func TestEqualsArrayIsOrderSensitive(t *testing.T) {
	a := Array()
	a.Append(S64(1))
	a.Append(S64(2))

	b := Array()
	b.Append(S64(2))
	b.Append(S64(1))

	require.False(t, a.Equals(b))

	c := Array()
	c.Append(S64(1))
	c.Append(S64(2))
	require.True(t, a.Equals(c))
}

func TestEqualsMapIsKeySetBased(t *testing.T) {
	a := Map()
	require.NoError(t, a.Insert("x", S64(1)))
	require.NoError(t, a.Insert("y", S64(2)))

	b := Map()
	require.NoError(t, b.Insert("y", S64(2)))
	require.NoError(t, b.Insert("x", S64(1)))

	require.True(t, a.Equals(b))
}

func TestParseParamsScalars(t *testing.T) {
	v, err := ParseParams(`a=1,b=-2,c=0x1f,d=0b101,e=3.5,f=true,g=false,h=null,i="hi there"`)
	require.NoError(t, err)

	a, _ := v.Get("a")
	require.Equal(t, uint64(1), a.AsU64())

	b, _ := v.Get("b")
	require.Equal(t, int64(-2), b.AsS64())

	c, _ := v.Get("c")
	require.Equal(t, uint64(31), c.AsU64())

	d, _ := v.Get("d")
	require.Equal(t, uint64(5), d.AsU64())

	e, _ := v.Get("e")
	require.Equal(t, 3.5, e.AsF64())

	f, _ := v.Get("f")
	require.True(t, f.AsBool())

	g, _ := v.Get("g")
	require.False(t, g.AsBool())

	h, _ := v.Get("h")
	require.Equal(t, KindNull, h.Kind())

	i, _ := v.Get("i")
	require.Equal(t, "hi there", i.AsString())
}

func TestParseParamsArrayAndMap(t *testing.T) {
	v, err := ParseParams(`arr=[1,2,3],obj={x:1,y:"z"}`)
	require.NoError(t, err)

	arr, ok := v.Get("arr")
	require.True(t, ok)
	require.Len(t, arr.AsArray(), 3)
	require.Equal(t, uint64(2), arr.AsArray()[1].AsU64())

	obj, ok := v.Get("obj")
	require.True(t, ok)
	x, ok := obj.Get("x")
	require.True(t, ok)
	require.Equal(t, uint64(1), x.AsU64())
	y, ok := obj.Get("y")
	require.True(t, ok)
	require.Equal(t, "z", y.AsString())
}

func TestParseParamsMalformedFailsWithKind(t *testing.T) {
	_, err := ParseParams(`a=`)
	require.Error(t, err)

	_, err = ParseParams(`a=1,,b=2`)
	require.Error(t, err)

	_, err = ParseParams(`a=[1,2`)
	require.Error(t, err)
}

func TestParseParamsEmptyInput(t *testing.T) {
	v, err := ParseParams("")
	require.NoError(t, err)
	require.Equal(t, KindMap, v.Kind())
	require.Empty(t, v.Keys())
}

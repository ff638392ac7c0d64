package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// stubString is a minimal StringLike for exercising Equal's content-based
// comparison without depending on package heap.
type stubString struct {
	header Header
	s      string
}

func (s *stubString) Header() *Header   { return &s.header }
func (s *stubString) ObjKind() ObjKind   { return KindString }
func (s *stubString) RawString() string { return s.s }

// stubObj is a non-string object, for exercising identity comparison.
type stubObj struct {
	header Header
}

func (o *stubObj) Header() *Header { return &o.header }
func (o *stubObj) ObjKind() ObjKind { return KindList }

func TestTruthyFalsyValues(t *testing.T) {
	require.False(t, Truthy(Nil))
	require.False(t, Truthy(Bool(false)))
	require.True(t, Truthy(Bool(true)))
	require.True(t, Truthy(Number(0)))
	require.True(t, Truthy(NewObj(&stubString{s: ""})))
}

func TestEqualNumbers(t *testing.T) {
	require.True(t, Equal(Number(1), Number(1)))
	require.False(t, Equal(Number(1), Number(2)))
	require.True(t, Equal(Number(0), Number(math.Copysign(0, -1))), "IEEE 0 == -0 must hold")
}

func TestEqualNaNNeverEqualsItself(t *testing.T) {
	nan := Number(math.NaN())
	require.False(t, Equal(nan, nan))
}

func TestEqualStringsByContent(t *testing.T) {
	a := NewObj(&stubString{s: "hi"})
	b := NewObj(&stubString{s: "hi"})
	require.True(t, Equal(a, b))

	c := NewObj(&stubString{s: "bye"})
	require.False(t, Equal(a, c))
}

func TestEqualObjectsByIdentity(t *testing.T) {
	one := &stubObj{}
	a := NewObj(one)
	b := NewObj(one)
	require.True(t, Equal(a, b))

	other := NewObj(&stubObj{})
	require.False(t, Equal(a, other))
}

func TestEqualAcrossKindsIsFalse(t *testing.T) {
	require.False(t, Equal(Number(0), Bool(false)))
	require.False(t, Equal(Nil, Bool(false)))
}

func TestIsChecksObjKind(t *testing.T) {
	v := NewObj(&stubString{s: "x"})
	require.True(t, v.Is(KindString))
	require.False(t, v.Is(KindList))
	require.False(t, Nil.Is(KindString))
}

func TestIsNaN(t *testing.T) {
	require.True(t, IsNaN(math.NaN()))
	require.False(t, IsNaN(1.0))
}

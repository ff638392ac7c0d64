package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/laythe/pkg/bytecode"
	"github.com/kristofer/laythe/pkg/heap"
)

func TestLookupMethodNamedCachesMonomorphicSite(t *testing.T) {
	h := heap.NewHeap(0)
	machine := New(h)
	chunk := &bytecode.Chunk{}

	class := h.NewClass("A")
	proto := h.NewFunction("bar", 0)
	closure := h.NewClosure(proto)
	class.Methods.Put("bar", closure)

	got, ok := machine.lookupMethodNamed(chunk, 0, class, "bar")
	require.True(t, ok)
	require.Same(t, closure, got)
	require.Len(t, machine.caches, 1)

	// Same call site, same class, same method object served from cache.
	got2, ok := machine.lookupMethodNamed(chunk, 0, class, "bar")
	require.True(t, ok)
	require.Same(t, closure, got2)
	require.Len(t, machine.caches, 1)
}

func TestLookupMethodNamedInvalidatesOnClassChangeAtSameSite(t *testing.T) {
	h := heap.NewHeap(0)
	machine := New(h)
	chunk := &bytecode.Chunk{}

	classA := h.NewClass("A")
	methodA := h.NewClosure(h.NewFunction("bar", 0))
	classA.Methods.Put("bar", methodA)

	classB := h.NewClass("B")
	methodB := h.NewClosure(h.NewFunction("bar", 0))
	classB.Methods.Put("bar", methodB)

	// Alternating receivers at the same call site (ip=0) thrash the single
	// monomorphic slot: each lookup must still resolve to the right
	// class's method, never a stale one left by the other class.
	for i := 0; i < 4; i++ {
		class, want := classA, methodA
		if i%2 == 1 {
			class, want = classB, methodB
		}
		got, ok := machine.lookupMethodNamed(chunk, 0, class, "bar")
		require.True(t, ok)
		require.Same(t, want, got)
		require.Len(t, machine.caches, 1, "monomorphic cache never grows past one slot per call site")
	}
}

func TestLookupMethodNamedDistinctCallSitesDoNotCollide(t *testing.T) {
	h := heap.NewHeap(0)
	machine := New(h)
	chunk := &bytecode.Chunk{}

	class := h.NewClass("A")
	method := h.NewClosure(h.NewFunction("bar", 0))
	class.Methods.Put("bar", method)

	_, ok := machine.lookupMethodNamed(chunk, 0, class, "bar")
	require.True(t, ok)
	_, ok = machine.lookupMethodNamed(chunk, 1, class, "bar")
	require.True(t, ok)
	require.Len(t, machine.caches, 2)
}

func TestLookupMethodNamedMissingMethodIsNotCached(t *testing.T) {
	h := heap.NewHeap(0)
	machine := New(h)
	chunk := &bytecode.Chunk{}

	class := h.NewClass("A")
	_, ok := machine.lookupMethodNamed(chunk, 0, class, "missing")
	require.False(t, ok)
	require.Empty(t, machine.caches)
}

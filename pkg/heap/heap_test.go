package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/laythe/pkg/value"
)

func TestInternStringDeduplicates(t *testing.T) {
	h := NewHeap(0)
	a := h.InternString("hello")
	b := h.InternString("hello")
	require.Same(t, a, b)
}

func TestCollectFreesUnreachableObjects(t *testing.T) {
	h := NewHeap(0)
	h.SetStressGC(true)

	kept := h.NewList(nil)
	h.SetVMRoot(rootOf(kept))

	h.NewList(nil) // unreachable as soon as this call returns
	h.Collect()

	require.Equal(t, 1, countLiveLists(h))
}

func TestCollectKeepsStackReachableObjects(t *testing.T) {
	h := NewHeap(0)
	l1 := h.NewList(nil)
	l2 := h.NewList(nil)
	h.SetVMRoot(rootOf(l1, l2))

	h.Collect()
	require.Equal(t, 2, countLiveLists(h))
}

func TestCollectMarksThroughClosureUpvalues(t *testing.T) {
	h := NewHeap(0)
	fn := h.NewFunction("f", 0)
	fn.UpvalueCount = 1
	closure := h.NewClosure(fn)
	up := h.NewUpvalue(0)
	closure.Upvalues[0] = up

	h.SetVMRoot(rootOf(closure))
	h.Collect()

	require.True(t, objectStillLinked(h, closure))
	require.True(t, objectStillLinked(h, up))
}

func TestUpvalueOpenThenClose(t *testing.T) {
	h := NewHeap(0)
	stack := []value.Value{value.Number(42)}
	up := h.NewUpvalue(0)

	require.Equal(t, value.Number(42), up.Get(stack))
	up.Close(stack)
	require.True(t, up.IsClosed)

	stack[0] = value.Number(100)
	require.Equal(t, value.Number(42), up.Get(stack), "closed upvalue must not read through to the stack anymore")
}

func TestClassInheritCopiesDownMethods(t *testing.T) {
	h := NewHeap(0)
	animal := h.NewClass("Animal")
	speak := h.NewClosure(h.NewFunction("speak", 0))
	animal.SetMethod("speak", speak)

	dog := h.NewClass("Dog")
	dog.Inherit(animal)

	got, ok := dog.Methods.Get("speak")
	require.True(t, ok)
	require.Same(t, speak, got)

	// Reassigning the superclass's table after the copy must not affect dog.
	override := h.NewClosure(h.NewFunction("speak2", 0))
	animal.SetMethod("speak", override)
	got, _ = dog.Methods.Get("speak")
	require.Same(t, speak, got, "copy-down inheritance must not retroactively follow superclass changes")
}

func TestClassInitIsCachedOnSet(t *testing.T) {
	h := NewHeap(0)
	c := h.NewClass("Point")
	init := h.NewClosure(h.NewFunction("init", 2))
	c.SetMethod("init", init)
	require.Same(t, init, c.Init)
}

func TestMapSetGetRemove(t *testing.T) {
	m := NewMap()
	key := value.NewObj(&String{Chars: "a"})
	require.True(t, m.Set(key, value.Number(1)))

	got, ok := m.Get(key)
	require.True(t, ok)
	require.Equal(t, value.Number(1), got)
	require.Equal(t, 1, m.Size())

	removed, ok := m.Remove(key)
	require.True(t, ok)
	require.Equal(t, value.Number(1), removed)
	require.Equal(t, 0, m.Size())

	_, ok = m.Get(key)
	require.False(t, ok)
}

func TestMapRejectsUnhashableKey(t *testing.T) {
	m := NewMap()
	ok := m.Set(value.NewObj(&List{}), value.Number(1))
	require.False(t, ok)
}

func TestDisplayFormatsMapKeysSorted(t *testing.T) {
	h := NewHeap(0)
	m := h.NewMap()
	m.Set(value.NewObj(h.InternString("b")), value.Number(2))
	m.Set(value.NewObj(h.InternString("a")), value.Number(1))

	require.Equal(t, `{a: 1, b: 2}`, Display(value.NewObj(m)))
}

func TestDisplayFormatsListAndScalars(t *testing.T) {
	h := NewHeap(0)
	l := h.NewList([]value.Value{value.Number(1), value.NewObj(h.InternString("x"))})
	require.Equal(t, `[1, x]`, Display(value.NewObj(l)))
	require.Equal(t, "nil", Display(value.Nil))
	require.Equal(t, "true", Display(value.Bool(true)))
	require.Equal(t, "3", Display(value.Number(3.0)))
	require.Equal(t, "3.5", Display(value.Number(3.5)))
}

func TestListIterYieldsItemsInOrder(t *testing.T) {
	h := NewHeap(0)
	l := h.NewList([]value.Value{value.Number(1), value.Number(2)})
	it := l.Iter()

	require.True(t, it.Next())
	require.Equal(t, value.Number(1), it.Current())
	require.True(t, it.Next())
	require.Equal(t, value.Number(2), it.Current())
	require.False(t, it.Next())
}

// TestCollectKeepsIteratorSourceAlive guards against the for-in desugaring
// gap: once the loop's `@iter` local is the only root, the original list
// expression is gone, so anything the iterator hasn't yielded yet must stay
// reachable through the iterator's snapshot or a stress collection mid-loop
// can sweep it out from under the next Next() call.
func TestCollectKeepsIteratorSourceAlive(t *testing.T) {
	h := NewHeap(0)

	a := h.InternString("a")
	b := h.InternString("b")
	l := h.NewList([]value.Value{value.NewObj(a), value.NewObj(b)})
	it := l.Iter()

	h.SetStressGC(true)
	h.SetVMRoot(rootOf(it))
	h.Collect()

	require.True(t, objectStillLinked(h, a))
	require.True(t, objectStillLinked(h, b))

	require.True(t, it.Next())
	require.Equal(t, value.NewObj(a), it.Current())
}

func TestCollectKeepsMapIteratorSourceAlive(t *testing.T) {
	h := NewHeap(0)

	k := h.InternString("key")
	m := h.NewMap()
	m.Set(value.NewObj(k), value.Number(1))
	it := m.Iter()

	h.SetStressGC(true)
	h.SetVMRoot(rootOf(it))
	h.Collect()

	require.True(t, objectStillLinked(h, k))
	require.True(t, it.Next())
	require.Equal(t, value.NewObj(k), it.Current())
}

func TestTimesIteratorRangeIsHalfOpen(t *testing.T) {
	it := TimesIterator(3)
	var got []float64
	for it.Next() {
		got = append(got, it.Current().AsNumber())
	}
	require.Equal(t, []float64{0, 1, 2}, got)
}

// --- test helpers -----------------------------------------------------

// fakeRoot marks a fixed set of heap objects as GC roots, standing in for
// the VM's real stack/frame/upvalue root set.
type fakeRoot struct {
	objs []value.Obj
}

func rootOf(objs ...value.Obj) RootMarker {
	return &fakeRoot{objs: objs}
}

func (r *fakeRoot) MarkRoots(mark func(value.Value)) {
	for _, o := range r.objs {
		mark(value.NewObj(o))
	}
}

func countLiveLists(h *Heap) int {
	n := 0
	for o := h.objects; o != nil; o = o.Header().Next {
		if _, ok := o.(*List); ok {
			n++
		}
	}
	return n
}

func objectStillLinked(h *Heap, target value.Obj) bool {
	for o := h.objects; o != nil; o = o.Header().Next {
		if o == target {
			return true
		}
	}
	return false
}

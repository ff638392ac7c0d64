package vm

import (
	"github.com/kristofer/laythe/pkg/bytecode"
	"github.com/kristofer/laythe/pkg/heap"
)

// cacheKey identifies a single GET_PROPERTY/GET_SUPER/INVOKE/SUPER_INVOKE
// call site (SET_PROPERTY does not consult the cache):
// the chunk it lives in plus its instruction index. Two different call
// sites that happen to share an opcode never collide because chunks are
// never reused across functions.
type cacheKey struct {
	chunk *bytecode.Chunk
	ip    int
}

// methodCache is a monomorphic inline cache: valid only while the last
// receiver seen at this call site had exactly this class (spec.md §4.5 —
// "caches key on the receiver's class, not the instance"). A second class
// at the same site simply invalidates and repopulates the single slot
// rather than growing into a polymorphic cache; Laythe doesn't need the
// megamorphic fallback tier a production JIT would.
type methodCache struct {
	class  *heap.Class
	method *heap.Closure
}

// lookupMethodNamed resolves name on class, consulting and updating the
// call-site cache at (chunk, ip).
func (vm *VM) lookupMethodNamed(chunk *bytecode.Chunk, ip int, class *heap.Class, name string) (*heap.Closure, bool) {
	key := cacheKey{chunk: chunk, ip: ip}
	if c, ok := vm.caches[key]; ok && c.class == class {
		return c.method, true
	}
	method, ok := class.Methods.Get(name)
	if !ok {
		return nil, false
	}
	vm.caches[key] = &methodCache{class: class, method: method}
	return method, true
}

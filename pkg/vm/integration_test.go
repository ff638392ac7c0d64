package vm_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/laythe/pkg/compiler"
	"github.com/kristofer/laythe/pkg/heap"
	"github.com/kristofer/laythe/pkg/vm"
)

// run compiles src and executes it on a fresh VM, returning everything
// printed via `print`.
func run(t *testing.T, src string) string {
	t.Helper()
	h := heap.NewHeap(0)
	fn, errs := compiler.Compile(src, h)
	require.Empty(t, errs, "compile errors: %v", errs)

	var out bytes.Buffer
	machine := vm.New(h)
	machine.Stdout = &out
	_, err := machine.Interpret(fn)
	require.NoError(t, err)
	return out.String()
}

func TestArithmeticAndPrint(t *testing.T) {
	out := run(t, `print 1 + 2 * 3;`)
	require.Equal(t, "7\n", out)
}

func TestModuloAndComparison(t *testing.T) {
	out := run(t, `print 7 % 3; print 2 < 3; print 3 <= 3;`)
	require.Equal(t, "1\ntrue\ntrue\n", out)
}

func TestStringConcat(t *testing.T) {
	out := run(t, `print "foo" + "bar";`)
	require.Equal(t, "foobar\n", out)
}

func TestLetAndLocalScope(t *testing.T) {
	out := run(t, `
		let x = 10;
		{
			let x = 20;
			print x;
		}
		print x;
	`)
	require.Equal(t, "20\n10\n", out)
}

func TestIfElse(t *testing.T) {
	out := run(t, `
		if (1 < 2) { print "yes"; } else { print "no"; }
	`)
	require.Equal(t, "yes\n", out)
}

func TestWhileLoop(t *testing.T) {
	out := run(t, `
		let i = 0;
		while (i < 3) {
			print i;
			i = i + 1;
		}
	`)
	require.Equal(t, "0\n1\n2\n", out)
}

func TestFunctionCallAndRecursion(t *testing.T) {
	out := run(t, `
		fn fib(n) {
			if (n < 2) { return n; }
			return fib(n - 1) + fib(n - 2);
		}
		print fib(8);
	`)
	require.Equal(t, "21\n", out)
}

func TestClosureCapturesUpvalue(t *testing.T) {
	out := run(t, `
		fn makeCounter() {
			let count = 0;
			fn inc() {
				count = count + 1;
				return count;
			}
			return inc;
		}
		let counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestClassInheritanceAndSuper(t *testing.T) {
	out := run(t, `
		class Animal {
			fn speak() {
				return "...";
			}
			fn describe() {
				return "An animal says " + this.speak();
			}
		}
		class Dog : Animal {
			fn speak() {
				return "Woof";
			}
			fn describe() {
				return super.describe() + "!";
			}
		}
		let d = Dog();
		print d.describe();
	`)
	require.Equal(t, "An animal says Woof!\n", out)
}

func TestListAndMapNatives(t *testing.T) {
	out := run(t, `
		let xs = [1, 2, 3];
		xs.push(4);
		print xs.len();
		print xs[0];

		let m = {"a": 1, "b": 2};
		print m.size();
		print m["a"];
	`)
	require.Equal(t, "4\n1\n2\n1\n", out)
}

func TestForInOverList(t *testing.T) {
	out := run(t, `
		let total = 0;
		for x in [1, 2, 3] {
			total = total + x;
		}
		print total;
	`)
	require.Equal(t, "6\n", out)
}

func TestAssertNativesPassAndFail(t *testing.T) {
	out := run(t, `
		assert(true);
		assertEq(1 + 1, 2);
		print "ok";
	`)
	require.Equal(t, "ok\n", out)

	h := heap.NewHeap(0)
	fn, errs := compiler.Compile(`assertEq(1, 2);`, h)
	require.Empty(t, errs)
	machine := vm.New(h)
	machine.Stdout = &bytes.Buffer{}
	_, err := machine.Interpret(fn)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "assertEq failed"))
}

func TestRuntimeErrorIncludesStackTrace(t *testing.T) {
	h := heap.NewHeap(0)
	fn, errs := compiler.Compile(`
		fn boom() {
			return 1 + nil;
		}
		boom();
	`, h)
	require.Empty(t, errs)

	machine := vm.New(h)
	machine.Stdout = &bytes.Buffer{}
	_, err := machine.Interpret(fn)
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestTreeWalkFixture(t *testing.T) {
	out := run(t, `
		class Tree {
			fn init(depth) {
				this.depth = depth;
				this.children = [];
				if (depth > 0) {
					let i = 0;
					while (i < 5) {
						this.children.push(Tree(depth - 1));
						i = i + 1;
					}
				}
			}
			fn walk() {
				let sum = this.depth;
				let i = 0;
				while (i < this.children.len()) {
					sum = sum + this.children[i].walk();
					i = i + 1;
				}
				return sum;
			}
		}
		print Tree(8).walk();
	`)
	require.Equal(t, "122068\n", out)
}

func TestDeepInheritanceThreeLevels(t *testing.T) {
	out := run(t, `
		class Foo {
			fn inFoo() { return "in foo"; }
		}
		class Bar : Foo {
			fn inBar() { return "in bar"; }
		}
		class Baz : Bar {
			fn inBaz() { return "in baz"; }
		}
		let baz = Baz();
		print baz.inFoo();
		print baz.inBar();
		print baz.inBaz();
	`)
	require.Equal(t, "in foo\nin bar\nin baz\n", out)
}

func TestSuperInClosureInInheritedMethod(t *testing.T) {
	out := run(t, `
		class A {
			fn method() {
				return "A";
			}
		}
		class B : A {
			fn getClosure() {
				fn closure() {
					return super.method();
				}
				return closure;
			}
		}
		class C : B {
		}
		print C().getClosure()();
	`)
	require.Equal(t, "A\n", out)
}

func TestBoundSuperMethod(t *testing.T) {
	out := run(t, `
		class A {
			fn method(arg) {
				return "A.method(" + arg + ")";
			}
		}
		class B : A {
			fn getClosure() {
				fn closure(arg) {
					return super.method(arg);
				}
				return closure;
			}
		}
		print B().getClosure()("arg");
	`)
	require.Equal(t, "A.method(arg)\n", out)
}

func TestReassignSuperclassDoesNotChangeDispatch(t *testing.T) {
	out := run(t, `
		class S {
			fn method() { return "S"; }
		}
		class Other {
			fn method() { return "Other"; }
		}
		class C : S {
		}
		let x = C();
		S = Other;
		print x.method();
	`)
	require.Equal(t, "S\n", out)
}

func TestForInOverMixedTypeList(t *testing.T) {
	out := run(t, `
		let it = [1, 2, 3, "s"].iter();
		while (it.next()) {
			print it.current();
		}
	`)
	require.Equal(t, "1\n2\n3\ns\n", out)
}

func TestMapRemoveAllKeysDownToEmpty(t *testing.T) {
	out := run(t, `
		let m = {1: "one", 2: "two", 3: "three", false: "no", "stuff": "thing"};
		print m.remove(1);
		print m.remove(2);
		print m.remove(3);
		print m.remove(false);
		print m.remove("stuff");
		print m.size();
	`)
	require.Equal(t, "one\ntwo\nthree\nno\nthing\n0\n", out)
}

func TestInlineCacheThrashAcrossAlternatingReceiverClasses(t *testing.T) {
	out := run(t, `
		class A {
			fn bar() { return "A.bar"; }
		}
		class B {
			fn bar() { return "B.bar"; }
		}
		let a = A();
		let b = B();
		let i = 0;
		while (i < 4) {
			if (i % 2 == 0) {
				print a.bar();
			} else {
				print b.bar();
			}
			i = i + 1;
		}
	`)
	require.Equal(t, "A.bar\nB.bar\nA.bar\nB.bar\n", out)
}

func TestIteratorAliasingSharesCurrentAcrossNames(t *testing.T) {
	out := run(t, `
		let it = [1, 2, 3].iter();
		let alias = it;
		it.next();
		print alias.current();
		it.next();
		print alias.current();
	`)
	require.Equal(t, "1\n2\n", out)
}

func TestBlockScopedFunctionRecursionDoesNotLeakToEnclosingScope(t *testing.T) {
	h := heap.NewHeap(0)
	fn, errs := compiler.Compile(`
		{
			fn fib(n) {
				if (n < 2) { return n; }
				return fib(n - 1) + fib(n - 2);
			}
			assertEq(fib(8), 21);
		}
		print fib(8);
	`, h)
	require.Empty(t, errs)

	machine := vm.New(h)
	var out bytes.Buffer
	machine.Stdout = &out
	_, err := machine.Interpret(fn)
	require.Error(t, err, "fib must not leak past the block it was declared in")
}

func TestGCStressModeDoesNotReclaimLiveValuesDuringExecution(t *testing.T) {
	h := heap.NewHeap(0)
	h.SetStressGC(true)
	fn, errs := compiler.Compile(`
		fn build(n) {
			let xs = [];
			let i = 0;
			while (i < n) {
				xs.push([i, "item", {i: true}]);
				i = i + 1;
			}
			let total = 0;
			let j = 0;
			while (j < xs.len()) {
				total = total + xs[j][0];
				j = j + 1;
			}
			return total;
		}
		print build(50);
	`, h)
	require.Empty(t, errs)

	var out bytes.Buffer
	machine := vm.New(h)
	machine.Stdout = &out
	_, err := machine.Interpret(fn)
	require.NoError(t, err)
	require.Equal(t, "1225\n", out.String())
}

func TestReuseVMAcrossInterpretCalls(t *testing.T) {
	h := heap.NewHeap(0)
	machine := vm.New(h)

	var out1, out2 bytes.Buffer
	fn1, errs := compiler.Compile(`let x = 1; print x;`, h)
	require.Empty(t, errs)
	machine.Stdout = &out1
	_, err := machine.Interpret(fn1)
	require.NoError(t, err)
	require.Equal(t, "1\n", out1.String())

	fn2, errs := compiler.Compile(`let y = 2; print y;`, h)
	require.Empty(t, errs)
	machine.Stdout = &out2
	_, err = machine.Interpret(fn2)
	require.NoError(t, err)
	require.Equal(t, "2\n", out2.String())
}

package malloc

import "runtime"
import "testing"
import "unsafe"

import s "github.com/bnclabs/gosettings"

func TestNewstack(t *testing.T) {
	stack := NewStack(1024, nil)
	if x := stack.Head(); x != 1024 { // downward by default
		t.Errorf("expected %v, got %v", 1024, x)
	} else if x := stack.Capacity(); x != 1024 {
		t.Errorf("expected %v, got %v", 1024, x)
	} else if x := stack.Available(); x != 1024 {
		t.Errorf("expected %v, got %v", 1024, x)
	}
	stack.Release()

	stack = NewStack(1024, s.Settings{"growth": "upward"})
	if x := stack.Head(); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
	stack.Release()

	// panic cases
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		NewStack(0, nil)
	}()
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		NewStack(1024, s.Settings{"growth": "sideways"})
	}()
	func() {
		if total, _, _ := getsysmem(); total == 0 {
			return // system memory unknown, reservations are not vetted
		}
		defer func() {
			if r := recover(); r != ErrorOutofMemory {
				t.Errorf("expected %v, got %v", ErrorOutofMemory, r)
			}
		}()
		NewStack(int64(1)<<61, nil)
	}()
}

func TestStackalloc(t *testing.T) {
	stack := NewStack(64, nil)
	ptr := stack.Alloc(16)
	if x := stack.Head(); x != 48 {
		t.Errorf("expected %v, got %v", 48, x)
	} else if uintptr(ptr) != stack.base+uintptr(48) {
		t.Errorf("expected %v, got %p", stack.base+uintptr(48), ptr)
	} else if x := stack.Allocated(); x != 16 {
		t.Errorf("expected %v, got %v", 16, x)
	}
	stack.Alloc(48)
	if x := stack.Available(); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}

	// overflow past capacity is a contract violation, not recoverable.
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		stack.Alloc(1)
	}()
	stack.Clear()
	if x := stack.Head(); x != 64 {
		t.Errorf("expected %v, got %v", 64, x)
	}
	stack.Release()
}

func TestStackallocupward(t *testing.T) {
	stack := NewStack(64, s.Settings{"growth": "upward"})
	ptr := stack.Alloc(16)
	if uintptr(ptr) != stack.base {
		t.Errorf("expected %v, got %p", stack.base, ptr)
	} else if x := stack.Head(); x != 16 {
		t.Errorf("expected %v, got %v", 16, x)
	}
	stack.Alloc(48)
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		stack.Alloc(1)
	}()
	stack.Clear()
	if x := stack.Head(); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
	stack.Release()
}

func TestStackmarker(t *testing.T) {
	stack := NewStack(1024, nil)
	stack.Alloc(100)
	marker := stack.Head()
	for _, n := range []int64{1, 7, 64, 100} {
		stack.Alloc(n)
	}
	stack.Free(marker)
	if x := stack.Head(); x != marker {
		t.Errorf("expected %v, got %v", marker, x)
	}
	stack.Release()
}

func TestStackalign(t *testing.T) {
	stack := NewStack(1024, nil)
	stack.Alloc(3) // knock the head off alignment
	for _, align := range []int64{8, 16, 32, 128} {
		ptr := stack.Allocalign(24, align)
		if (uintptr(ptr) % uintptr(align)) != 0 {
			t.Errorf("pointer %p is not %v byte aligned", ptr, align)
		}
	}
	// panic case
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		stack.Allocalign(8, 24)
	}()
	stack.Release()
}

func TestStackcreate(t *testing.T) {
	type node struct {
		x int32
		y int64
	}
	stack := NewStack(1024, nil)
	obj := Stackcreate(stack, node{x: 10, y: 20})
	if obj.x != 10 || obj.y != 20 {
		t.Errorf("unexpected %v", *obj)
	} else if (uintptr(unsafe.Pointer(obj)) % unsafe.Alignof(node{})) != 0 {
		t.Errorf("pointer %p is not naturally aligned", obj)
	}
	aligned := Stackcreatealigned(stack, 64, node{x: 1})
	if (uintptr(unsafe.Pointer(aligned)) % 64) != 0 {
		t.Errorf("pointer %p is not %v byte aligned", aligned, 64)
	}

	// destroy finalizes without reclaiming space.
	head, finalized := stack.Head(), false
	Stackdestroy(stack, obj, func(obj *node) { finalized = true })
	if !finalized {
		t.Errorf("expected finalize to run")
	} else if x := stack.Head(); x != head {
		t.Errorf("expected %v, got %v", head, x)
	}
	stack.Release()
}

func TestStackscope(t *testing.T) {
	stack := NewStack(1024, nil)
	stack.Alloc(64)
	before := stack.Head()

	func() {
		defer NewStackscope(stack).Release()
		stack.Alloc(100)
		stack.Alloc(28)
	}()
	if x := stack.Head(); x != before {
		t.Errorf("expected %v, got %v", before, x)
	}

	// the marker is restored even when the scope exits panicking.
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic to propagate")
			}
		}()
		defer NewStackscope(stack).Release()
		stack.Alloc(100)
		panic("partway failure")
	}()
	if x := stack.Head(); x != before {
		t.Errorf("expected %v, got %v", before, x)
	}
	stack.Release()
}

func TestDualstack(t *testing.T) {
	dual := NewDualstack(64)
	top, bottom := dual.Top(), dual.Bottom()
	if x := top.Capacity() + bottom.Capacity(); x != 64 {
		t.Errorf("expected %v, got %v", 64, x)
	}

	// fill both halves completely with distinct patterns and verify
	// neither stack corrupts the other's region.
	tblock := unsafe.Slice((*byte)(top.Alloc(top.Capacity())), top.Capacity())
	bblock := unsafe.Slice((*byte)(bottom.Alloc(bottom.Capacity())), bottom.Capacity())
	for i := range tblock {
		tblock[i] = 0xaa
	}
	for i := range bblock {
		bblock[i] = 0x55
	}
	for i, c := range tblock {
		if c != 0xaa {
			t.Fatalf("top corrupted at %v", i)
		}
	}
	for i, c := range bblock {
		if c != 0x55 {
			t.Fatalf("bottom corrupted at %v", i)
		}
	}

	// both stacks are at peak, neither can take one more byte.
	for _, stack := range []*Stack{top, bottom} {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("expected panic")
				}
			}()
			stack.Alloc(1)
		}()
	}
	dual.Release()

	// too small to give both stacks an aligned region.
	for _, capacity := range []int64{0, Alignment, 2*Alignment - 1} {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("expected panic for capacity %v", capacity)
				}
			}()
			NewDualstack(capacity)
		}()
	}
}

func TestDualstackretain(t *testing.T) {
	// a sub-stack handed out on its own keeps the shared buffer
	// reachable, even after the Dualstack itself is collected.
	top := NewDualstack(64).Top()
	if top.block == nil {
		t.Fatalf("sub-stack does not hold the shared buffer")
	}
	runtime.GC()
	obj := Stackcreate(top, int64(0x1122334455667788))
	runtime.GC()
	if *obj != 0x1122334455667788 {
		t.Errorf("expected %x, got %x", int64(0x1122334455667788), *obj)
	}
}

func BenchmarkStackalloc(b *testing.B) {
	stack := NewStack(1024*1024, nil)
	marker := stack.Head()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stack.Alloc(64)
		stack.Free(marker)
	}
	stack.Release()
}

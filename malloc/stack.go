// Stack, Dualstack and Stackscope are not thread safe.

package malloc

import "fmt"
import "unsafe"

import s "github.com/bnclabs/gosettings"
import gohumanize "github.com/dustin/go-humanize"

// Stack is a linear allocator over one contiguous buffer. The head
// offset moves downward from capacity or upward from zero, one
// direction per instance. Individual allocations are never reclaimed;
// space comes back only by rolling the head to an earlier marker, a
// bulk O(1) deallocation. Callers shall size the buffer for worst
// case peak usage, overflowing it is a contract violation and panics.
type Stack struct {
	head     int64
	capacity int64
	downward bool
	owned    bool // false when the buffer is borrowed, as in Dualstack
	base     uintptr
	block    []byte // keeps base's memory reachable, owned or not

	logprefix string
}

// NewStack create a stack allocator owning a buffer of `capacity`
// bytes. Settings is described by Defaultstacksettings().
func NewStack(capacity int64, setts s.Settings) *Stack {
	if capacity <= 0 {
		panicerr("stack capacity %v should be positive", capacity)
	}
	setts = make(s.Settings).Mixin(Defaultstacksettings(), setts)
	downward := true
	switch growth := setts.String("growth"); growth {
	case "downward":
	case "upward":
		downward = false
	default:
		panicerr("unknown stack growth %q", growth)
	}

	logprefix := fmt.Sprintf("[stack %v]", capacity)
	checksysmem(logprefix, capacity)
	block := osreserve(capacity)
	stack := newstack(block, blockbase(block), capacity, downward, logprefix)
	stack.owned = true
	infof("%v created, growth:%v\n", logprefix, setts.String("growth"))
	return stack
}

// newstack build a stack over a region borrowed from `block`. `base`
// shall be Alignment aligned. The stack holds on to `block`; a base
// uintptr alone would not keep the buffer's memory reachable.
func newstack(block []byte, base uintptr, capacity int64, downward bool, logprefix string) *Stack {
	stack := &Stack{
		capacity:  capacity,
		downward:  downward,
		base:      base,
		block:     block,
		logprefix: logprefix,
	}
	stack.Clear()
	return stack
}

// Alloc carve `n` bytes off the head of the stack. Unlike pool
// allocation this never fails recoverably, exceeding capacity panics.
func (stack *Stack) Alloc(n int64) unsafe.Pointer {
	if n < 0 {
		panicerr("%v alloc of %v bytes", stack.logprefix, n)
	}
	if stack.downward {
		if stack.head < n {
			panicerr("%v overflow, %v bytes left %v asked",
				stack.logprefix, stack.head, n)
		}
		stack.head -= n
		return unsafe.Pointer(stack.base + uintptr(stack.head))
	}
	if stack.head+n > stack.capacity {
		panicerr("%v overflow, %v bytes left %v asked",
			stack.logprefix, stack.capacity-stack.head, n)
	}
	ptr := stack.base + uintptr(stack.head)
	stack.head += n
	return unsafe.Pointer(ptr)
}

// Allocalign carve `n` usable bytes whose address is aligned to
// `align`, a power of 2. The request is widened by align-1 bytes;
// the widening comes back only when a marker from before this
// allocation is restored.
func (stack *Stack) Allocalign(n, align int64) unsafe.Pointer {
	mask := align - 1
	if align <= 0 || (align&mask) != 0 {
		panicerr("%v alignment %v is not a power of 2", stack.logprefix, align)
	}
	ptr := uintptr(stack.Alloc(n + mask))
	return unsafe.Pointer((ptr + uintptr(mask)) &^ uintptr(mask))
}

// Head marker for the stack's current offset, to be restored later
// with Free.
func (stack *Stack) Head() int64 {
	return stack.head
}

// Free roll the head back to `marker`, invalidating every allocation
// made after it in one O(1) step. No finalizers run; destroy values
// owning resources before rolling back past them. Restoring a marker
// is valid only if allocations made after it are no longer
// referenced.
func (stack *Stack) Free(marker int64) {
	checkmarker(stack, marker)
	stack.head = marker
}

// Clear reset the stack to its initial empty state.
func (stack *Stack) Clear() {
	if stack.downward {
		stack.head = stack.capacity
		return
	}
	stack.head = 0
}

// Capacity total bytes managed by this stack.
func (stack *Stack) Capacity() int64 {
	return stack.capacity
}

// Available bytes left on the stack.
func (stack *Stack) Available() int64 {
	if stack.downward {
		return stack.head
	}
	return stack.capacity - stack.head
}

// Allocated bytes carved off the stack.
func (stack *Stack) Allocated() int64 {
	return stack.capacity - stack.Available()
}

// Info memory accounting for this stack, all in bytes.
func (stack *Stack) Info() (capacity, heap, alloc, overhead int64) {
	self := int64(unsafe.Sizeof(*stack))
	if !stack.owned { // borrowed buffer, accounted by the owner
		return stack.capacity, 0, stack.Allocated(), self
	}
	heap = int64(len(stack.block))
	return stack.capacity, heap, stack.Allocated(), self + (heap - stack.capacity)
}

// Release the stack's buffer. Not required for borrowed buffers.
func (stack *Stack) Release() {
	if stack.owned {
		osrelease(stack.block)
	}
	stack.block, stack.base = nil, 0
	stack.head, stack.capacity = 0, 0
	infof("%v released\n", stack.logprefix)
}

func (stack *Stack) String() string {
	fmsg := "%v capacity:%v alloc:%v"
	return fmt.Sprintf(
		fmsg, stack.logprefix,
		gohumanize.Bytes(uint64(stack.capacity)),
		gohumanize.Bytes(uint64(stack.Allocated())))
}

// Stackcreate carve a cell for T, aligned to T's natural alignment,
// and place `value` in it.
func Stackcreate[T any](stack *Stack, value T) *T {
	size := int64(unsafe.Sizeof(value))
	align := int64(unsafe.Alignof(value))
	obj := (*T)(stack.Allocalign(size, align))
	*obj = value
	return obj
}

// Stackcreatealigned like Stackcreate with an explicit, stricter
// alignment.
func Stackcreatealigned[T any](stack *Stack, align int64, value T) *T {
	obj := (*T)(stack.Allocalign(int64(unsafe.Sizeof(value)), align))
	*obj = value
	return obj
}

// Stackdestroy finalize a value carved from the stack. The head does
// not move, explicit destruction reclaims no space; roll back a
// marker for that.
func Stackdestroy[T any](stack *Stack, value *T, finalize func(*T)) {
	if finalize != nil {
		finalize(value)
	}
}

// Stackscope is a scoped guard over a stack: it captures the head
// marker at construction and Release rolls the stack back to it.
// Meant to be used with defer, which runs on every exit path,
// including panics:
//
//	defer malloc.NewStackscope(stack).Release()
type Stackscope struct {
	stack  *Stack
	marker int64
}

// NewStackscope capture the stack's current head.
func NewStackscope(stack *Stack) *Stackscope {
	return &Stackscope{stack: stack, marker: stack.Head()}
}

// Release roll the stack back to the captured marker.
func (scope *Stackscope) Release() {
	scope.stack.Free(scope.marker)
}

// Dualstack packs two stacks into one buffer, a downward stack over
// the upper half and an upward stack over the lower half, growing
// toward each other. For producers with distinct short-lived and
// long-lived allocation patterns; combined peak usage is bounded by
// the one buffer.
type Dualstack struct {
	block  []byte
	top    *Stack
	bottom *Stack
}

// NewDualstack create a dual stack allocator owning a buffer of
// `capacity` bytes, split evenly between the two stacks. `capacity`
// shall be at least 2*Alignment, one aligned region per stack.
func NewDualstack(capacity int64) *Dualstack {
	if capacity < 2*Alignment {
		panicerr("dualstack capacity %v should be at least %v",
			capacity, 2*Alignment)
	}
	logprefix := fmt.Sprintf("[dualstack %v]", capacity)
	checksysmem(logprefix, capacity)
	block := osreserve(capacity)
	base := blockbase(block)
	split := alignup(capacity/2, Alignment)
	dual := &Dualstack{
		block:  block,
		top:    newstack(block, base+uintptr(split), capacity-split, true, logprefix+"[top]"),
		bottom: newstack(block, base, split, false, logprefix+"[bottom]"),
	}
	infof("%v created\n", logprefix)
	return dual
}

// Top the downward stack over the buffer's upper half.
func (dual *Dualstack) Top() *Stack {
	return dual.top
}

// Bottom the upward stack over the buffer's lower half.
func (dual *Dualstack) Bottom() *Stack {
	return dual.bottom
}

// Release the shared buffer, invalidating both stacks.
func (dual *Dualstack) Release() {
	osrelease(dual.block)
	dual.block = nil
	dual.top.block, dual.top.base, dual.top.head, dual.top.capacity = nil, 0, 0, 0
	dual.bottom.block, dual.bottom.base, dual.bottom.head, dual.bottom.capacity = nil, 0, 0, 0
}

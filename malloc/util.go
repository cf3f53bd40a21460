package malloc

import "errors"
import "fmt"
import "unsafe"

// ErrorOutofMemory panic value when an allocator cannot reserve its
// backing memory.
var ErrorOutofMemory = errors.New("goalloc.outofmemory")

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}

// alignup round `n` up to the nearest multiple of `align`, where
// `align` shall be a power of 2.
func alignup(n, align int64) int64 {
	mask := align - 1
	if align <= 0 || (align&mask) != 0 {
		panicerr("alignment %v is not a power of 2", align)
	}
	return (n + mask) &^ mask
}

// alignptr round address `ptr` up to the nearest `align` boundary.
func alignptr(ptr uintptr, align int64) uintptr {
	mask := uintptr(align - 1)
	return (ptr + mask) &^ mask
}

// osreserve and osrelease are the only primitives through which the
// allocators touch the raw memory source. Memory is reserved from the
// Go heap, over-sized by Alignment so the usable base can always be
// aligned.
func osreserve(n int64) []byte {
	block := make([]byte, n+Alignment)
	return block
}

// osrelease gives a reserved block back to the source. With the Go
// heap as the source this is a no-op, the block is reclaimed once the
// allocator drops its reference.
func osrelease(block []byte) {
}

// blockbase aligned base address of a reserved block.
func blockbase(block []byte) uintptr {
	return alignptr(uintptr(unsafe.Pointer(&block[0])), Alignment)
}

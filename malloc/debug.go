//go:build debug
// +build debug

package malloc

import "unsafe"

// poison freshly carved blocks so stale reads stand out.
func initblock(block uintptr, size int64) {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(block)), size)
	for i := range dst {
		dst[i] = 0xff
	}
}

// checkcell validate that `off` names a cell inside the pool's
// reservation.
func checkcell(pool *Pool, off uint64) {
	if off >= pool.sentinel {
		panicerr("%v foreign pointer, offset %v past %v",
			pool.logprefix, off, pool.sentinel)
	} else if (off % uint64(pool.cellsize)) != 0 {
		panicerr("%v unaligned pointer, offset %v cellsize %v",
			pool.logprefix, off, pool.cellsize)
	}
}

// checkmarker validate a stack rollback target.
func checkmarker(stack *Stack, marker int64) {
	if marker < 0 || marker > stack.capacity {
		panicerr("%v marker %v outside 0..%v",
			stack.logprefix, marker, stack.capacity)
	}
}

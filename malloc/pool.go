// Pool methods are thread safe only when the pool is created with
// "multithreaded" settings.

package malloc

import "fmt"
import "sync/atomic"
import "unsafe"

import s "github.com/bnclabs/gosettings"
import gohumanize "github.com/dustin/go-humanize"

// Pool is a fixed capacity allocator handing out same-sized cells
// from one contiguous reservation. Unallocated cells double as
// free-list links: the first 8 bytes of a free cell hold the offset
// of the next free cell, terminating in a sentinel one past the last
// cell. A cell's current content, live value or free-link, is known
// only from free-list membership; the pool performs no runtime tag
// check.
type Pool struct {
	// 64-bit aligned stats
	mallocated int64

	freeoff  uint64 // offset of free-list head, sentinel when exhausted
	sentinel uint64 // capacity * cellsize
	size     int64  // usable bytes per cell, as requested
	cellsize int64  // carved bytes per cell, Alignment padded
	capacity int64  // number of cells
	base     uintptr
	block    []byte // backing reservation, keeps base alive

	multithreaded bool
	logprefix     string
}

// NewPool create a pool of `capacity` cells, each holding `size`
// usable bytes. Cells are padded to hold a free-list link and to
// Alignment. Settings is described by Defaultsettings().
func NewPool(size, capacity int64, setts s.Settings) *Pool {
	if size <= 0 {
		panicerr("pool cell size %v should be positive", size)
	} else if capacity <= 0 || capacity > Maxpoolcapacity {
		panicerr("pool capacity %v outside 1..%v", capacity, Maxpoolcapacity)
	}
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)

	cellsize := alignup(size, Alignment)
	pool := &Pool{
		size:          size,
		cellsize:      cellsize,
		capacity:      capacity,
		sentinel:      uint64(capacity * cellsize),
		multithreaded: setts.Bool("multithreaded"),
	}
	pool.logprefix = fmt.Sprintf("[pool %v:%v]", size, capacity)

	checksysmem(pool.logprefix, capacity*cellsize)
	pool.block = osreserve(capacity * cellsize)
	pool.base = blockbase(pool.block)
	// thread every cell into the free list, ending in the sentinel.
	for i := int64(0); i < capacity; i++ {
		link := (*uint64)(unsafe.Pointer(pool.base + uintptr(i*cellsize)))
		*link = uint64((i + 1) * cellsize)
	}
	infof("%v created, multithreaded:%v\n", pool.logprefix, pool.multithreaded)
	return pool
}

// Alloc one cell from the pool. Returns false when the free list is
// exhausted, callers are expected to check and recover.
func (pool *Pool) Alloc() (unsafe.Pointer, bool) {
	if pool.block == nil {
		panicerr("%v already released", pool.logprefix)
	}
	if pool.multithreaded {
		return pool.alloccas()
	}
	off := pool.freeoff
	if off == pool.sentinel {
		return nil, false
	}
	ptr := pool.base + uintptr(off)
	pool.freeoff = *(*uint64)(unsafe.Pointer(ptr))
	pool.mallocated += pool.cellsize
	initblock(ptr, pool.cellsize)
	return unsafe.Pointer(ptr), true
}

// Treiber stack pop. The head and its successor are read in two
// steps, so another goroutine allocating and re-freeing the head cell
// in between can leave a stale successor at a succeeding CAS, the
// classic ABA window of a linked free-list. The single-owner free
// contract narrows the window, it does not close it.
func (pool *Pool) alloccas() (unsafe.Pointer, bool) {
	for {
		off := atomic.LoadUint64(&pool.freeoff)
		if off == pool.sentinel {
			return nil, false
		}
		ptr := pool.base + uintptr(off)
		next := atomic.LoadUint64((*uint64)(unsafe.Pointer(ptr)))
		if atomic.CompareAndSwapUint64(&pool.freeoff, off, next) {
			atomic.AddInt64(&pool.mallocated, pool.cellsize)
			initblock(ptr, pool.cellsize)
			return unsafe.Pointer(ptr), true
		}
	}
}

// Free a cell back to the pool. `ptr` shall be a pointer previously
// returned by this pool's Alloc, freed exactly once; violations are
// checked only under the `debug` build tag.
func (pool *Pool) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		panicerr("%v free nil pointer", pool.logprefix)
	}
	off := uint64(uintptr(ptr) - pool.base)
	checkcell(pool, off)
	if pool.multithreaded {
		for {
			head := atomic.LoadUint64(&pool.freeoff)
			atomic.StoreUint64((*uint64)(ptr), head)
			if atomic.CompareAndSwapUint64(&pool.freeoff, head, off) {
				break
			}
		}
		atomic.AddInt64(&pool.mallocated, -pool.cellsize)
		return
	}
	*(*uint64)(ptr) = pool.freeoff
	pool.freeoff = off
	pool.mallocated -= pool.cellsize
}

// Exhausted is true iff the free list is empty, the next Alloc would
// fail.
func (pool *Pool) Exhausted() bool {
	if pool.multithreaded {
		return atomic.LoadUint64(&pool.freeoff) == pool.sentinel
	}
	return pool.freeoff == pool.sentinel
}

// Slabsize implement api.Mallocer{} interface.
func (pool *Pool) Slabsize() int64 {
	return pool.size
}

// Capacity number of cells managed by this pool.
func (pool *Pool) Capacity() int64 {
	return pool.capacity
}

// Allocated implement api.Mallocer{} interface.
func (pool *Pool) Allocated() int64 {
	return atomic.LoadInt64(&pool.mallocated)
}

// Available implement api.Mallocer{} interface.
func (pool *Pool) Available() int64 {
	return pool.capacity*pool.cellsize - pool.Allocated()
}

// Info implement api.Mallocer{} interface.
func (pool *Pool) Info() (capacity, heap, alloc, overhead int64) {
	self := int64(unsafe.Sizeof(*pool))
	capacity = pool.capacity * pool.cellsize
	heap = int64(len(pool.block))
	return capacity, heap, pool.Allocated(), self + (heap - capacity)
}

// Release implement api.Mallocer{} interface. Does not finalize cells
// still live with the application.
func (pool *Pool) Release() {
	osrelease(pool.block)
	pool.block, pool.base = nil, 0
	pool.freeoff, pool.sentinel = 0, 0
	pool.mallocated, pool.capacity = 0, 0
	infof("%v released\n", pool.logprefix)
}

func (pool *Pool) String() string {
	capacity, heap, alloc, overhead := pool.Info()
	fmsg := "%v capacity:%v heap:%v alloc:%v overhead:%v"
	return fmt.Sprintf(
		fmsg, pool.logprefix,
		gohumanize.Bytes(uint64(capacity)), gohumanize.Bytes(uint64(heap)),
		gohumanize.Bytes(uint64(alloc)), gohumanize.Bytes(uint64(overhead)))
}

//---- local functions

// walk the free list, can be a costly operation.
func (pool *Pool) checkfreelist() (freecells int64) {
	off := pool.freeoff
	if pool.multithreaded {
		off = atomic.LoadUint64(&pool.freeoff)
	}
	for off != pool.sentinel {
		freecells++
		off = *(*uint64)(unsafe.Pointer(pool.base + uintptr(off)))
	}
	return freecells
}

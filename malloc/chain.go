// Poolchain methods are thread safe only when the chain is created
// with "multithreaded" settings.

package malloc

import "fmt"
import "sync/atomic"
import "unsafe"

import s "github.com/bnclabs/gosettings"
import gohumanize "github.com/dustin/go-humanize"

import "github.com/bnclabs/goalloc/lib"

// metasize trailing meta word per allocation, holds the owning
// chunk's record index.
const metasize = int64(8)

// poolchunk is one pool managed as a unit inside a Poolchain, paired
// with its live-allocation counter. Records live in the chain's
// chunkpool so the chain can return them in O(1) once empty.
type poolchunk struct {
	allocations int64 // atomic in multithreaded mode
	pool        *Pool
	index       int64 // record index within the chain's chunkpool
}

// chunkpool is the chain's own bookkeeping allocator, a fixed pool of
// chunk records with an index free-list. Records stay in a typed
// slice, visible to the garbage collector, so chunk buffers referenced
// from them stay alive. Mutated only under the chain's write lock.
type chunkpool struct {
	records  []poolchunk
	freelist []int32
	freeoff  int
}

func newchunkpool(n int64) *chunkpool {
	cpool := &chunkpool{
		records:  make([]poolchunk, n),
		freelist: make([]int32, n),
		freeoff:  int(n - 1),
	}
	for i := int64(0); i < n; i++ {
		cpool.freelist[i] = int32(i)
	}
	return cpool
}

func (cpool *chunkpool) alloc() (*poolchunk, bool) {
	if cpool.freeoff < 0 {
		return nil, false
	}
	index := cpool.freelist[cpool.freeoff]
	cpool.freeoff--
	chunk := &cpool.records[index]
	chunk.index = int64(index)
	return chunk, true
}

func (cpool *chunkpool) free(chunk *poolchunk) {
	index := int32(chunk.index)
	*chunk = poolchunk{}
	cpool.freeoff++
	cpool.freelist[cpool.freeoff] = index
}

// Poolchain is a dynamically growing sequence of same-sized pools,
// for workloads whose required capacity is not known up front. Each
// allocation carries a trailing meta word naming its chunk, so Free
// recovers the owning pool in O(1) without a lookup table. One fully
// free chunk is cached as `reserved` to absorb load oscillating
// around a chunk boundary.
type Poolchain struct {
	chunks   []*poolchunk // active chunks, insertion order
	reserved *poolchunk
	cpool    *chunkpool
	rwlock   lib.RWSpinLock

	size     int64 // usable bytes per allocation
	slabsize int64 // size + trailing meta, Alignment padded
	metaoff  int64 // offset of the meta word within a cell
	chunkcap int64 // cells per chunk

	multithreaded bool
	logprefix     string
	setts         s.Settings
}

// NewPoolchain create a chain of pools, each chunk holding `chunkcap`
// cells of `size` usable bytes, with room for `maxchunks` chunk
// records. One chunk is created eagerly. The chain grows on demand
// and fails, recoverably, only when all `maxchunks` records are in
// use. Settings is described by Defaultsettings().
func NewPoolchain(size, chunkcap, maxchunks int64, setts s.Settings) *Poolchain {
	if size <= 0 {
		panicerr("chain cell size %v should be positive", size)
	} else if chunkcap <= 0 {
		panicerr("chain chunk capacity %v should be positive", chunkcap)
	} else if maxchunks <= 0 || maxchunks > Maxchunks {
		panicerr("chain maxchunks %v outside 1..%v", maxchunks, Maxchunks)
	}
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)

	metaoff := alignup(size, Alignment)
	chain := &Poolchain{
		chunks:        make([]*poolchunk, 0, maxchunks),
		cpool:         newchunkpool(maxchunks),
		size:          size,
		slabsize:      metaoff + metasize,
		metaoff:       metaoff,
		chunkcap:      chunkcap,
		multithreaded: setts.Bool("multithreaded"),
		setts:         setts,
	}
	chain.logprefix = fmt.Sprintf("[chain %v:%v]", size, chunkcap)

	chunk, _ := chain.newchunk() // maxchunks >= 1, cannot fail
	chain.chunks = append(chain.chunks, chunk)
	infof("%v created, multithreaded:%v maxchunks:%v\n",
		chain.logprefix, chain.multithreaded, maxchunks)
	return chain
}

// Alloc one block of Slabsize() usable bytes. Scans active chunks in
// insertion order and grows the chain when every chunk is full, first
// from the reserved chunk, then from a fresh chunk record. Returns
// false only when the chunk-record pool itself is exhausted.
func (chain *Poolchain) Alloc() (unsafe.Pointer, bool) {
	if chain.cpool == nil {
		panicerr("%v already released", chain.logprefix)
	}
	for {
		chain.rlock()
		for _, chunk := range chain.chunks {
			if ptr, ok := chunk.pool.Alloc(); ok {
				chain.stampmeta(ptr, chunk)
				chain.incallocations(chunk)
				chain.runlock()
				return ptr, true
			}
		}
		nchunks := len(chain.chunks)
		chain.runlock()

		chain.wlock()
		if len(chain.chunks) != nchunks {
			// another goroutine grew the chain, rescan.
			chain.wunlock()
			continue
		}
		chunk := chain.reserved
		if chunk != nil {
			chain.reserved = nil
		} else {
			var ok bool
			if chunk, ok = chain.newchunk(); !ok {
				chain.wunlock()
				return nil, false
			}
		}
		chain.chunks = append(chain.chunks, chunk)
		debugf("%v grown to %v chunks\n", chain.logprefix, len(chain.chunks))
		chain.wunlock()
	}
}

// Free a block back to its owning chunk. When the chunk's last
// allocation is freed the chunk is handed to the reservation policy:
// kept as the single reserved chunk if none is cached, destroyed
// otherwise.
func (chain *Poolchain) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		panicerr("%v free nil pointer", chain.logprefix)
	}
	chunk := chain.chunkof(ptr)
	chunk.pool.Free(ptr)
	if chain.decallocations(chunk) == 0 {
		chain.setreserved(chunk)
	}
}

// Slabsize implement api.Mallocer{} interface. Usable bytes per
// allocation, the trailing meta word is not part of it.
func (chain *Poolchain) Slabsize() int64 {
	return chain.size
}

// Allocated implement api.Mallocer{} interface.
func (chain *Poolchain) Allocated() (alloc int64) {
	chain.rlock()
	for _, chunk := range chain.chunks {
		alloc += chunk.pool.Allocated()
	}
	chain.runlock()
	return alloc
}

// Available implement api.Mallocer{} interface. Bytes free within the
// currently active and reserved chunks, the chain can grow past this.
func (chain *Poolchain) Available() (available int64) {
	chain.rlock()
	for _, chunk := range chain.chunks {
		available += chunk.pool.Available()
	}
	if chain.reserved != nil {
		available += chain.reserved.pool.Available()
	}
	chain.runlock()
	return available
}

// Info implement api.Mallocer{} interface.
func (chain *Poolchain) Info() (capacity, heap, alloc, overhead int64) {
	chain.rlock()
	self := int64(unsafe.Sizeof(*chain))
	recs := int64(cap(chain.records())) * int64(unsafe.Sizeof(poolchunk{}))
	overhead = self + recs
	for _, chunk := range chain.chunks {
		c, h, a, o := chunk.pool.Info()
		capacity, heap, alloc, overhead = capacity+c, heap+h, alloc+a, overhead+o
	}
	if chain.reserved != nil {
		c, h, _, o := chain.reserved.pool.Info()
		capacity, heap, overhead = capacity+c, heap+h, overhead+o
	}
	chain.runlock()
	return capacity, heap, alloc, overhead
}

// Chunks number of active chunks in the chain.
func (chain *Poolchain) Chunks() int64 {
	chain.rlock()
	n := int64(len(chain.chunks))
	chain.runlock()
	return n
}

// Reserved is true iff the chain is caching a fully free chunk.
func (chain *Poolchain) Reserved() bool {
	chain.rlock()
	ok := chain.reserved != nil
	chain.runlock()
	return ok
}

// Release implement api.Mallocer{} interface. Does not finalize
// blocks still live with the application.
func (chain *Poolchain) Release() {
	chain.wlock()
	for _, chunk := range chain.chunks {
		chunk.pool.Release()
	}
	if chain.reserved != nil {
		chain.reserved.pool.Release()
		chain.reserved = nil
	}
	chain.chunks, chain.cpool = nil, nil
	chain.wunlock()
	infof("%v released\n", chain.logprefix)
}

func (chain *Poolchain) String() string {
	capacity, heap, alloc, overhead := chain.Info()
	fmsg := "%v chunks:%v capacity:%v heap:%v alloc:%v overhead:%v"
	return fmt.Sprintf(
		fmsg, chain.logprefix, chain.Chunks(),
		gohumanize.Bytes(uint64(capacity)), gohumanize.Bytes(uint64(heap)),
		gohumanize.Bytes(uint64(alloc)), gohumanize.Bytes(uint64(overhead)))
}

//---- local functions

// newchunk carve a chunk record and give it a pool. Caller shall hold
// the write lock, except during construction.
func (chain *Poolchain) newchunk() (*poolchunk, bool) {
	chunk, ok := chain.cpool.alloc()
	if !ok {
		return nil, false
	}
	chunk.pool = NewPool(chain.slabsize, chain.chunkcap, chain.setts)
	return chunk, true
}

// setreserved reservation policy for a chunk whose allocation count
// reached zero. The count is re-checked under the write lock, another
// goroutine may have allocated from the chunk in the window between
// the count dropping to zero and the lock being acquired.
func (chain *Poolchain) setreserved(chunk *poolchunk) {
	chain.wlock()
	if chain.loadallocations(chunk) == 0 {
		chain.removechunk(chunk)
		if chain.reserved == nil {
			chain.reserved = chunk
			debugf("%v chunk %v reserved\n", chain.logprefix, chunk.index)
		} else if chain.reserved != chunk {
			chunk.pool.Release()
			chain.cpool.free(chunk)
			debugf("%v chunk %v destroyed\n", chain.logprefix, chunk.index)
		}
	}
	chain.wunlock()
}

// removechunk unlink a chunk from the active list, no-op if already
// unlinked.
func (chain *Poolchain) removechunk(chunk *poolchunk) {
	for i, active := range chain.chunks {
		if active == chunk {
			copy(chain.chunks[i:], chain.chunks[i+1:])
			chain.chunks = chain.chunks[:len(chain.chunks)-1]
			return
		}
	}
}

// stampmeta record the owning chunk in the meta word trailing the
// allocation's usable bytes.
func (chain *Poolchain) stampmeta(ptr unsafe.Pointer, chunk *poolchunk) {
	meta := (*uint64)(unsafe.Pointer(uintptr(ptr) + uintptr(chain.metaoff)))
	*meta = uint64(chunk.index)
}

// chunkof recover the owning chunk from an allocation's meta word.
func (chain *Poolchain) chunkof(ptr unsafe.Pointer) *poolchunk {
	meta := (*uint64)(unsafe.Pointer(uintptr(ptr) + uintptr(chain.metaoff)))
	return &chain.cpool.records[*meta]
}

func (chain *Poolchain) records() []poolchunk {
	return chain.cpool.records
}

func (chain *Poolchain) incallocations(chunk *poolchunk) {
	if chain.multithreaded {
		atomic.AddInt64(&chunk.allocations, 1)
		return
	}
	chunk.allocations++
}

func (chain *Poolchain) decallocations(chunk *poolchunk) int64 {
	if chain.multithreaded {
		return atomic.AddInt64(&chunk.allocations, -1)
	}
	chunk.allocations--
	return chunk.allocations
}

func (chain *Poolchain) loadallocations(chunk *poolchunk) int64 {
	if chain.multithreaded {
		return atomic.LoadInt64(&chunk.allocations)
	}
	return chunk.allocations
}

func (chain *Poolchain) rlock() {
	if chain.multithreaded {
		chain.rwlock.RLock()
	}
}

func (chain *Poolchain) runlock() {
	if chain.multithreaded {
		chain.rwlock.RUnlock()
	}
}

func (chain *Poolchain) wlock() {
	if chain.multithreaded {
		chain.rwlock.Lock()
	}
}

func (chain *Poolchain) wunlock() {
	if chain.multithreaded {
		chain.rwlock.Unlock()
	}
}

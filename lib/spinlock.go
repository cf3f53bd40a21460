package lib

import "runtime"
import "sync/atomic"

// SpinLock is a busy-spinning mutual exclusion lock. Unlike sync.Mutex
// a contending goroutine never parks, it yields the processor and
// retries. Use only around short critical sections with few contending
// goroutines. Zero value is an unlocked SpinLock.
type SpinLock struct {
	lock int32
}

// Lock acquire the spin-lock, spinning until it is available.
func (s *SpinLock) Lock() {
	for !atomic.CompareAndSwapInt32(&s.lock, 0, 1) {
		runtime.Gosched()
	}
}

// Unlock release the spin-lock.
func (s *SpinLock) Unlock() {
	atomic.StoreInt32(&s.lock, 0)
}

// RWSpinLock is a busy-spinning reader/writer lock. The lock word
// holds the reader count while non-negative and -1 while a writer is
// inside. Readers never block each other; a writer waits for the
// count to drain to zero. Zero value is an unlocked RWSpinLock.
type RWSpinLock struct {
	lock int32 // >= 0 reader count, -1 writer
}

// RLock acquire the lock for reading, spinning while a writer holds it.
func (rw *RWSpinLock) RLock() {
	for {
		v := atomic.LoadInt32(&rw.lock)
		if v >= 0 && atomic.CompareAndSwapInt32(&rw.lock, v, v+1) {
			return
		}
		runtime.Gosched()
	}
}

// RUnlock release one reader's hold on the lock.
func (rw *RWSpinLock) RUnlock() {
	atomic.AddInt32(&rw.lock, -1)
}

// Lock acquire the lock for writing, spinning until no reader or
// writer holds it.
func (rw *RWSpinLock) Lock() {
	for !atomic.CompareAndSwapInt32(&rw.lock, 0, -1) {
		runtime.Gosched()
	}
}

// Unlock release the writer's hold on the lock.
func (rw *RWSpinLock) Unlock() {
	atomic.StoreInt32(&rw.lock, 0)
}

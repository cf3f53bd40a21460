package malloc

import s "github.com/bnclabs/gosettings"
import "github.com/cloudfoundry/gosigar"

// Alignment cell sizes and stack carvings are padded to multiples of
// Alignment, and every pointer handed out is aligned to it.
const Alignment = int64(8)

// Maxpoolcapacity maximum number of cells allowed in a single pool.
// Can be used as default for pool `capacity`.
const Maxpoolcapacity = int64(65536)

// Maxchunks maximum number of chunks allowed in a pool-chain. Can be
// used as default for `maxchunks` with NewPoolchain().
const Maxchunks = int64(1024)

// Defaultsettings for Pool and Poolchain.
//
// "multithreaded" (bool, default: false)
//	If true, pool allocation/free use a lock-free compare-and-swap
//	loop and chain mutation is protected by a reader/writer
//	spin-lock. If false, no synchronization at all; concurrent use
//	is then the caller's bug.
func Defaultsettings() s.Settings {
	return s.Settings{
		"multithreaded": false,
	}
}

// Defaultstacksettings for Stack.
//
// "growth" (string, default: "downward")
//	Direction the stack's head moves on allocation, "downward" from
//	the top of the buffer or "upward" from the bottom.
func Defaultstacksettings() s.Settings {
	return s.Settings{
		"growth": "downward",
	}
}

// getsysmem snapshot of system memory, in bytes.
func getsysmem() (total, used, free uint64) {
	mem := sigar.Mem{}
	if err := mem.Get(); err != nil {
		return 0, 0, 0
	}
	return mem.Total, mem.Used, mem.ActualFree
}

// checksysmem vet a reservation against system memory before asking
// for it. Exceeding total memory is hopeless and panics with
// ErrorOutofMemory; exceeding free memory is only warned about,
// construction goes ahead and fails if the reservation itself does.
func checksysmem(logprefix string, capacity int64) {
	total, _, free := getsysmem()
	if total > 0 && capacity > int64(total) {
		panic(ErrorOutofMemory)
	}
	if free > 0 && capacity > int64(free) {
		warnf("%v capacity %v exceeds free system memory %v\n",
			logprefix, capacity, free)
	}
}

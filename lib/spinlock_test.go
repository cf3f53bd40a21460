package lib

import "sync"
import "testing"

func TestSpinLock(t *testing.T) {
	var lock SpinLock
	var wg sync.WaitGroup

	nroutines, repeat := 8, 10000
	counter := 0
	wg.Add(nroutines)
	for n := 0; n < nroutines; n++ {
		go func() {
			defer wg.Done()
			for i := 0; i < repeat; i++ {
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	if x := nroutines * repeat; counter != x {
		t.Errorf("expected %v, got %v", x, counter)
	}
}

func TestRWSpinLock(t *testing.T) {
	var lock RWSpinLock
	var wg sync.WaitGroup

	// writers keep a, b moving in lock step, readers must never
	// observe them apart.
	nwriters, nreaders, repeat := 2, 6, 10000
	a, b := 0, 0
	wg.Add(nwriters + nreaders)
	for n := 0; n < nwriters; n++ {
		go func() {
			defer wg.Done()
			for i := 0; i < repeat; i++ {
				lock.Lock()
				a++
				b++
				lock.Unlock()
			}
		}()
	}
	for n := 0; n < nreaders; n++ {
		go func() {
			defer wg.Done()
			for i := 0; i < repeat; i++ {
				lock.RLock()
				x, y := a, b
				lock.RUnlock()
				if x != y {
					t.Errorf("torn read, %v != %v", x, y)
					return
				}
			}
		}()
	}
	wg.Wait()
	if x := nwriters * repeat; a != x || b != x {
		t.Errorf("expected %v, got %v and %v", x, a, b)
	}
}

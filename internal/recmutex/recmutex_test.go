package recmutex

import (
	"sync"
	"testing"
	"time"

	"github.com/petermattis/goid"
)

func TestGoroutineIDsDistinct(t *testing.T) {
	self := goid.Get()
	other := make(chan int64)
	go func() { other <- goid.Get() }()
	if got := <-other; got == self || got == 0 || self == 0 {
		t.Fatalf("goid.Get() = %d on two goroutines (%d here), want distinct non-zero ids", got, self)
	}
}

func TestReentrantLock(t *testing.T) {
	var m Mutex
	m.Lock()
	m.Lock()
	if !m.Held() {
		t.Fatalf("Held() = false after Lock")
	}
	m.Unlock()
	if !m.Held() {
		t.Fatalf("Held() = false after one of two unlocks")
	}
	m.Unlock()
	if m.Held() {
		t.Fatalf("Held() = true after final unlock")
	}
}

func TestExclusiveAcrossGoroutines(t *testing.T) {
	var m Mutex
	m.Lock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
		m.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatalf("second goroutine acquired a held mutex")
	case <-time.After(20 * time.Millisecond):
	}
	m.Unlock()
	<-acquired
}

func TestUnlockByOtherGoroutinePanics(t *testing.T) {
	var m Mutex
	m.Lock()
	defer m.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	var recovered any
	go func() {
		defer wg.Done()
		defer func() { recovered = recover() }()
		m.Unlock()
	}()
	wg.Wait()
	if recovered == nil {
		t.Fatalf("Unlock() from non-owner did not panic")
	}
}

func TestCounterUnderContention(t *testing.T) {
	var m Mutex
	counter := 0
	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for n := 0; n < workers; n++ {
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				m.Lock()
				m.Lock()
				counter++
				m.Unlock()
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != workers*100 {
		t.Fatalf("counter = %d, want %d", counter, workers*100)
	}
}

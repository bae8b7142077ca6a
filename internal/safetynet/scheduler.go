package safetynet

import (
	"sync"
	"time"
)

// Scheduler runs fn repeatedly until the returned stop function is called.
// Stop must not block, since it may be called from inside fn.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (stop func())
}

// TickerScheduler is the wall-clock Scheduler.
type TickerScheduler struct{}

// Every starts a goroutine that calls fn on each tick of a time.Ticker.
func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

package gpio

import (
	"errors"
	"sync"
	"time"
)

// SimulatedSource emits a rising edge every Interval, each followed by a
// contact bounce BounceAfter later. It stands in for the sensor on a bench
// machine without GPIO.
type SimulatedSource struct {
	Interval    time.Duration
	BounceAfter time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewSimulatedSource creates a SimulatedSource with a 2ms bounce.
func NewSimulatedSource(interval time.Duration) *SimulatedSource {
	return &SimulatedSource{Interval: interval, BounceAfter: 2 * time.Millisecond}
}

// Watch starts the edge generator.
func (s *SimulatedSource) Watch(onEdge func()) error {
	if s.Interval <= 0 {
		return errors.New("gpio: simulated interval must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return errors.New("gpio: already watching")
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				onEdge()
				if s.BounceAfter > 0 {
					time.Sleep(s.BounceAfter)
					onEdge()
				}
			}
		}
	}(s.stop, s.done)
	return nil
}

// Close stops the generator and waits for it to exit.
func (s *SimulatedSource) Close() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

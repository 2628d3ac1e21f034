//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealSource watches a GPIO line through the Linux GPIO character device.
type RealSource struct {
	chipName string
	pin      int

	mu   sync.Mutex
	line *gpiocdev.Line
}

// NewRealSource creates a source for the given chip and BCM pin. The line is
// not requested until Watch is called.
func NewRealSource(chip string, pin int) (*RealSource, error) {
	if chip == "" {
		chip = DefaultChip
	}
	if pin < 0 {
		return nil, fmt.Errorf("invalid pin %d", pin)
	}
	return &RealSource{chipName: chip, pin: pin}, nil
}

// Watch requests the line as an input with pull-up and rising-edge events.
// The open-drain hall sensor pulls the line low while a magnet is present,
// so each pass produces one rising edge as the magnet leaves.
func (s *RealSource) Watch(onEdge func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.line != nil {
		return errors.New("gpio: already watching")
	}

	line, err := gpiocdev.RequestLine(s.chipName, s.pin,
		gpiocdev.WithConsumer("pulse-relay"),
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			onEdge()
		}),
	)
	if err != nil {
		return fmt.Errorf("request pin %d on %s: %w", s.pin, s.chipName, err)
	}
	s.line = line
	return nil
}

// Close releases the line.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults)
// before closing to ensure clean state for system shutdown/reboot.
func (s *RealSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.line == nil {
		return nil
	}

	var errs []error
	if err := s.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", s.pin, err))
	}
	if err := s.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", s.pin, err))
	}
	s.line = nil
	return errors.Join(errs...)
}

// Package gpio delivers sensor edges with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Source delivers rising edges from the pulse sensor.
type Source interface {
	// Watch starts calling onEdge for every rising edge. It returns once
	// edge delivery is set up. onEdge runs on the source's own goroutine
	// and must not block.
	Watch(onEdge func()) error

	// Close stops edge delivery and releases GPIO resources.
	Close() error
}

// Defaults for a hall-effect sensor on a Raspberry Pi (BCM numbering).
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 17
)

// Package bus shares one physical I2C bus between several logical clients.
//
// The arbiter hands out a fixed number of handles. Each handle is an i2c.Bus,
// so periph device drivers can be built on top of it unchanged, and every
// transaction issued through a handle holds the arbiter lock from the first
// written byte to the last read byte.
package bus

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// MaxHandles is how many handles one Arbiter grants: one for the sensor and
// one for the display.
const MaxHandles = 2

// ErrHandlesExhausted is returned by Acquire once MaxHandles handles exist.
var ErrHandlesExhausted = errors.New("bus: all handles already acquired")

// Arbiter serializes access to a physical bus it does not own.
type Arbiter struct {
	bus i2c.Bus

	mu      sync.Mutex // held for the duration of one transaction
	grantMu sync.Mutex
	granted int
}

// New wraps b. Closing b stays the caller's job.
func New(b i2c.Bus) *Arbiter {
	return &Arbiter{bus: b}
}

// Acquire returns a new handle onto the shared bus.
func (a *Arbiter) Acquire() (*Handle, error) {
	a.grantMu.Lock()
	defer a.grantMu.Unlock()

	if a.granted >= MaxHandles {
		return nil, ErrHandlesExhausted
	}
	a.granted++
	return &Handle{arbiter: a, id: a.granted}, nil
}

// Handle is a non-owning view onto the arbitrated bus. It implements i2c.Bus.
type Handle struct {
	arbiter *Arbiter
	id      int
}

var _ i2c.Bus = (*Handle)(nil)

// String implements i2c.Bus.
func (h *Handle) String() string {
	return fmt.Sprintf("%s#%d", h.arbiter.bus, h.id)
}

// Tx implements i2c.Bus. It blocks until no other handle is transacting.
func (h *Handle) Tx(addr uint16, w, r []byte) error {
	h.arbiter.mu.Lock()
	defer h.arbiter.mu.Unlock()

	if err := h.arbiter.bus.Tx(addr, w, r); err != nil {
		return fmt.Errorf("bus %s tx to 0x%02X: %w", h, addr, err)
	}
	return nil
}

// SetSpeed implements i2c.Bus. The clock is shared, so the last caller wins.
func (h *Handle) SetSpeed(f physic.Frequency) error {
	h.arbiter.mu.Lock()
	defer h.arbiter.mu.Unlock()

	return h.arbiter.bus.SetSpeed(f)
}

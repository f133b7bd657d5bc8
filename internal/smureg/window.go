// Package smureg turns the two-register "index/data" indirect window at PCI
// configuration offsets 0xB8 (index) and 0xBC (data) into flat 32-bit reads
// and writes of the SMU's own 32-bit register address space.
//
// The window is not atomic across contenders: writing the index and then
// transferring the data are two separate operations on the shared transport,
// and nothing below this package stops another goroutine from sliding its
// own index write in between. Window serializes each (index, data) pair
// with its own mutex so that concurrent mailboxes — which otherwise only
// serialize per-queue — cannot alias each other's register addresses. See
// SPEC_FULL.md §13 for why this lock lives here rather than per-queue.
package smureg

import "sync"

const (
	indexOffset = 0xB8
	dataOffset  = 0xBC
)

// Transport is the narrow byte-addressed interface smureg needs from the
// underlying config-space handle. *pciconfig.Handle satisfies it.
type Transport interface {
	Read32(offset int64) (uint32, error)
	Write32(offset int64, value uint32) error
}

// Window is a flat 32-bit register file backed by the index/data pair.
type Window struct {
	transport Transport
	mu        sync.Mutex
}

// New wraps transport with the index/data indirection.
func New(transport Transport) *Window {
	return &Window{transport: transport}
}

// Read reads the SMU register at addr.
func (w *Window) Read(addr uint32) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.transport.Write32(indexOffset, addr); err != nil {
		return 0, err
	}
	return w.transport.Read32(dataOffset)
}

// Write writes value to the SMU register at addr.
func (w *Window) Write(addr uint32, value uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.transport.Write32(indexOffset, addr); err != nil {
		return err
	}
	return w.transport.Write32(dataOffset, value)
}

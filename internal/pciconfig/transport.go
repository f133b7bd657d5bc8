// Package pciconfig implements the lowest layer of the SMU command path: a
// byte-addressed, 32-bit read/write transport against a single open PCI
// configuration-space file.
//
// Everything above this package — the index/data register window, the
// mailboxes, the façade — is built in terms of Read32/Write32 against a
// *Handle. This package knows nothing about SMU registers, queues, or the
// governor; it only moves four bytes at a time, little-endian, with an
// optional advisory lock for cross-process coordination.
package pciconfig

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrTransportNotOpened is returned by Read32/Write32 when called against a
// Handle that has not been opened (or has already been closed).
var ErrTransportNotOpened = errors.New("pciconfig: transport not opened")

// Options configures a Handle.
type Options struct {
	// UseFlock, when true, makes every Read32/Write32 acquire an exclusive
	// advisory lock on a duplicated descriptor of the config file for the
	// duration of that single 4-byte transfer. This only protects against
	// other *processes* on the same host interleaving transfers; it does
	// not make a multi-register mailbox round atomic (see
	// internal/mailbox, and SPEC_FULL.md §13).
	UseFlock bool
}

// Handle owns one open descriptor onto a PCI device's configuration-space
// file (typically /sys/bus/pci/devices/<bdf>/config). It is safe for
// concurrent use: every Read32/Write32 performs its own independent 4-byte
// transfer and, with UseFlock, its own independent lock/unlock.
type Handle struct {
	path string
	opts Options
	file *os.File
}

// Open opens the configuration-space file at path. The returned Handle must
// be closed with Close when no longer needed.
func Open(path string, opts Options) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("pciconfig: open %s: %w", path, err)
	}
	return &Handle{path: path, opts: opts, file: f}, nil
}

// Close releases the underlying descriptor. Safe to call once; further
// Read32/Write32 calls after Close return ErrTransportNotOpened.
func (h *Handle) Close() error {
	if h == nil || h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}

// Path returns the configuration-space file path this handle was opened
// against.
func (h *Handle) Path() string {
	return h.path
}

// Read32 reads exactly four little-endian bytes at offset.
func (h *Handle) Read32(offset int64) (uint32, error) {
	if h == nil || h.file == nil {
		return 0, ErrTransportNotOpened
	}

	unlock, err := h.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	var buf [4]byte
	n, err := h.file.ReadAt(buf[:], offset)
	if err != nil {
		return 0, fmt.Errorf("pciconfig: read32 at %#x: %w", offset, err)
	}
	if n != 4 {
		return 0, fmt.Errorf("pciconfig: read32 at %#x: short read of %d bytes", offset, n)
	}

	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// Write32 writes exactly four little-endian bytes at offset.
func (h *Handle) Write32(offset int64, value uint32) error {
	if h == nil || h.file == nil {
		return ErrTransportNotOpened
	}

	unlock, err := h.lock()
	if err != nil {
		return err
	}
	defer unlock()

	buf := [4]byte{
		byte(value),
		byte(value >> 8),
		byte(value >> 16),
		byte(value >> 24),
	}

	n, err := h.file.WriteAt(buf[:], offset)
	if err != nil {
		return fmt.Errorf("pciconfig: write32 at %#x: %w", offset, err)
	}
	if n != 4 {
		return fmt.Errorf("pciconfig: write32 at %#x: short write of %d bytes", offset, n)
	}

	return nil
}

// lock acquires the advisory lock (if configured) on a duplicated
// descriptor and returns a function that releases it. When UseFlock is
// false, it returns a no-op release function.
func (h *Handle) lock() (release func(), err error) {
	if !h.opts.UseFlock {
		return func() {}, nil
	}

	dupFd, err := unix.Dup(int(h.file.Fd()))
	if err != nil {
		return nil, fmt.Errorf("pciconfig: dup for flock: %w", err)
	}

	if err := unix.Flock(dupFd, unix.LOCK_EX); err != nil {
		unix.Close(dupFd)
		return nil, fmt.Errorf("pciconfig: flock: %w", err)
	}

	return func() {
		unix.Flock(dupFd, unix.LOCK_UN)
		unix.Close(dupFd)
	}, nil
}

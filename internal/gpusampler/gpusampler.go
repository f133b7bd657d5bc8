// Package gpusampler implements governor.GpuSampler against a real Cyan
// Skillfish device: the GUI-active bit lives in an MMIO register (spec.md
// §GLOSSARY "GUI-active bit"), while temperature and clock bounds come from
// sysfs, the same mix of /dev/mem-style register access and sysfs
// bookkeeping the teacher repo uses for its device-facing layers.
package gpusampler

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// grbmStatusOffset is the byte offset of GRBM_STATUS within the GPU's MMIO
// BAR on Cyan Skillfish.
const grbmStatusOffset = 0x00008010

// guiActiveBit is bit 31 of GRBM_STATUS (spec.md §GLOSSARY).
const guiActiveBit = 1 << 31

// Sampler reads GPU activity, temperature, and clock bounds for one device.
type Sampler struct {
	mmio      []byte
	hwmonTemp string
	dpmSclk   string

	minClockMHz uint32
	maxClockMHz uint32
}

// Options locates the sysfs/MMIO resources for one device.
type Options struct {
	// MemPath is usually /dev/mem; BarPhysAddr and BarLen describe the
	// GPU's register BAR within it.
	MemPath     string
	BarPhysAddr int64
	BarLen      int

	// HwmonTempInput is the sysfs hwmonN/tempN_input file for this device.
	HwmonTempInput string
	// PpDpmSclk is the sysfs pp_dpm_sclk file listing available engine
	// clocks, one per line, e.g. "0: 200Mhz *".
	PpDpmSclk string
}

// Open maps the GPU's register BAR and parses its clock table. The mapping
// is read-only: this sampler never writes MMIO. SMU commands go through PCI
// config space (internal/pciconfig), not through this mapping.
func Open(opts Options) (*Sampler, error) {
	f, err := os.OpenFile(opts.MemPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("gpusampler: open %s: %w", opts.MemPath, err)
	}
	defer f.Close()

	mmio, err := unix.Mmap(int(f.Fd()), opts.BarPhysAddr, opts.BarLen, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("gpusampler: mmap %s at %#x: %w", opts.MemPath, opts.BarPhysAddr, err)
	}

	s := &Sampler{
		mmio:      mmio,
		hwmonTemp: opts.HwmonTempInput,
		dpmSclk:   opts.PpDpmSclk,
	}

	if err := s.loadClockBounds(); err != nil {
		unix.Munmap(mmio)
		return nil, err
	}

	return s, nil
}

// Close unmaps the register BAR.
func (s *Sampler) Close() error {
	if s.mmio == nil {
		return nil
	}
	err := unix.Munmap(s.mmio)
	s.mmio = nil
	return err
}

// PollActive reads bit 31 of GRBM_STATUS.
func (s *Sampler) PollActive() bool {
	v := readMMIO32(s.mmio, grbmStatusOffset)
	return v&guiActiveBit != 0
}

// ReadTempC reads the device's hwmon temperature input, which is reported
// in millidegrees Celsius.
func (s *Sampler) ReadTempC() uint32 {
	data, err := os.ReadFile(s.hwmonTemp)
	if err != nil {
		return 0
	}
	milliC, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return uint32(milliC / 1000)
}

// MinEngineClockMHz returns the lowest clock the device advertises.
func (s *Sampler) MinEngineClockMHz() uint32 { return s.minClockMHz }

// MaxEngineClockMHz returns the highest clock the device advertises.
func (s *Sampler) MaxEngineClockMHz() uint32 { return s.maxClockMHz }

// loadClockBounds parses pp_dpm_sclk, a file with one line per supported
// clock level, e.g.:
//
//	0: 200Mhz
//	1: 2200Mhz *
func (s *Sampler) loadClockBounds() error {
	data, err := os.ReadFile(s.dpmSclk)
	if err != nil {
		return fmt.Errorf("gpusampler: reading %s: %w", s.dpmSclk, err)
	}

	var min, max uint32
	first := true
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		mhzField := strings.TrimSuffix(strings.TrimSuffix(fields[1], "Mhz"), "*")
		mhz, err := strconv.ParseUint(mhzField, 10, 32)
		if err != nil {
			continue
		}
		if first {
			min = uint32(mhz)
			first = false
		}
		max = uint32(mhz)
	}

	if first {
		return fmt.Errorf("gpusampler: %s had no parseable clock levels", s.dpmSclk)
	}
	s.minClockMHz, s.maxClockMHz = min, max
	return nil
}

func readMMIO32(mmio []byte, offset int) uint32 {
	return uint32(mmio[offset]) |
		uint32(mmio[offset+1])<<8 |
		uint32(mmio[offset+2])<<16 |
		uint32(mmio[offset+3])<<24
}

// Package pcidiscover locates the Cyan Skillfish APU on the PCI bus and
// hands back the BDF address and the sysfs config-space path
// internal/pciconfig opens (spec.md §GLOSSARY "BDF", "config space").
package pcidiscover

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

// VendorID and DeviceID identify the Cyan Skillfish APU (spec.md §1).
const (
	VendorID = 0x1002
	DeviceID = 0x13fe

	sysBusPCIDevices = "/sys/bus/pci/devices"
)

// Device describes one discovered GPU.
type Device struct {
	// BDF is the bus:device.function address, e.g. "0000:04:00.0".
	BDF string
	// ConfigPath is the sysfs file internal/pciconfig opens for config-space
	// reads/writes.
	ConfigPath string
}

// Find walks sysfs for the first function matching VendorID/DeviceID. If
// logger is non-nil, matched udev properties are logged for diagnostics; udev
// enumeration failures are non-fatal since sysfs alone is sufficient to
// locate and open the device.
func Find(logger *log.Logger) (Device, error) {
	entries, err := os.ReadDir(sysBusPCIDevices)
	if err != nil {
		return Device{}, fmt.Errorf("pcidiscover: reading %s: %w", sysBusPCIDevices, err)
	}

	for _, entry := range entries {
		bdf := entry.Name()
		dir := filepath.Join(sysBusPCIDevices, bdf)

		vendor, err := readHexFile(filepath.Join(dir, "vendor"))
		if err != nil || vendor != VendorID {
			continue
		}
		device, err := readHexFile(filepath.Join(dir, "device"))
		if err != nil || device != DeviceID {
			continue
		}

		if logger != nil {
			logUdevProperties(logger, bdf)
		}

		return Device{
			BDF:        bdf,
			ConfigPath: filepath.Join(dir, "config"),
		}, nil
	}

	return Device{}, fmt.Errorf("pcidiscover: no PCI function with vendor=%#x device=%#x found", VendorID, DeviceID)
}

// readHexFile reads a sysfs file containing a "0x..." hex value.
func readHexFile(path string) (uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")), 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// logUdevProperties logs the matched device's udev properties (driver,
// syspath) for operator diagnostics. It never influences which device is
// selected: that's decided purely from sysfs above.
func logUdevProperties(logger *log.Logger, bdf string) {
	u := udev.Udev{}
	enum := u.NewEnumerate()
	if err := enum.AddMatchSubsystem("pci"); err != nil {
		logger.Debug("udev enumeration unavailable", "err", err)
		return
	}
	devices, err := enum.Devices()
	if err != nil {
		logger.Debug("udev enumeration unavailable", "err", err)
		return
	}

	for _, d := range devices {
		if !strings.HasSuffix(d.Syspath(), bdf) {
			continue
		}
		logger.Debug("matched GPU",
			"bdf", bdf,
			"syspath", d.Syspath(),
			"driver", d.Driver(),
		)
		return
	}
}

// Package devicecache persists the last-resolved device location and clock
// bounds so repeated invocations can skip the sysfs walk. It is a pure
// convenience layer over internal/pcidiscover: the core control loop never
// reads or writes it, matching spec.md §1's scoping of persistence out of
// the core. Grounded in the teacher's tocalls.yaml load/save shape
// (src/deviceid.go), adapted from a read-only reference table to a
// read-write cache.
package devicecache

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Entry is the cached information for one device.
type Entry struct {
	BDF            string `yaml:"bdf"`
	ConfigPath     string `yaml:"config_path"`
	HwmonTempInput string `yaml:"hwmon_temp_input"`
	PpDpmSclk      string `yaml:"pp_dpm_sclk"`
	MinClockMHz    uint32 `yaml:"min_clock_mhz"`
	MaxClockMHz    uint32 `yaml:"max_clock_mhz"`
}

// Path returns the default cache file location under the user's XDG cache
// directory, following the same search-by-convention approach the teacher
// uses for its data file (src/deviceid.go's search_locations), reduced here
// to the single conventional XDG location since this cache is written by
// the same program that reads it.
func Path() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cyanfreqd", "device.yaml"), nil
}

// Load reads the cache file at path. A missing file is not an error: it
// reports ok=false so the caller knows to run discovery.
func Load(path string) (entry Entry, ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Save writes entry to path, creating its parent directory if needed.
func Save(path string, entry Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

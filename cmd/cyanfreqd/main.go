// Command cyanfreqd is the dynamic frequency/voltage governor daemon for
// the Cyan Skillfish APU (spec.md §1).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/pflag"

	"github.com/cskgov/cyanfreqd/internal/config"
	"github.com/cskgov/cyanfreqd/internal/devicecache"
	"github.com/cskgov/cyanfreqd/internal/governor"
	"github.com/cskgov/cyanfreqd/internal/gpusampler"
	"github.com/cskgov/cyanfreqd/internal/pciconfig"
	"github.com/cskgov/cyanfreqd/internal/pcidiscover"
	"github.com/cskgov/cyanfreqd/internal/smu"
	"github.com/cskgov/cyanfreqd/internal/smureg"
)

// defaultPollBudget is the per-mailbox attempt cap (spec.md §4.3).
const defaultPollBudget = 2000

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to the TOML configuration file.")
	bdfOverride := pflag.String("bdf", "", "Override the discovered PCI bus:device.function address.")
	dryRun := pflag.Bool("dry-run", false, "Open the device, issue one test_message, then exit without constructing the governor or entering the control loop.")
	allowQueue0 := pflag.Bool("allow-queue0", true, "Permit operations on the privileged queue 0. Disable for bench testing against queues 1-4 only.")
	verbose := pflag.BoolP("verbose", "v", false, "Enable debug-level logging.")
	logFilePattern := pflag.StringP("log-file", "L", "", "strftime pattern for the log file path, e.g. cyanfreqd-%Y%m%d.log. Logs to stderr if unset.")

	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "cyanfreqd: dynamic frequency/voltage governor for Cyan Skillfish APUs")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger := newLogger(*verbose, *logFilePattern)

	if err := run(logger, *configPath, *bdfOverride, *allowQueue0, *dryRun); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool, logFilePattern string) *log.Logger {
	out := os.Stderr
	if logFilePattern != "" {
		path, err := strftime.Format(logFilePattern, time.Now())
		if err == nil {
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				out = f
			}
		}
	}

	logger := log.NewWithOptions(out, log.Options{ReportTimestamp: true})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func run(logger *log.Logger, configPath, bdfOverride string, allowQueue0, dryRun bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	configSpacePath, err := resolveConfigSpacePath(logger, bdfOverride)
	if err != nil {
		return fmt.Errorf("discovering device: %w", err)
	}

	handle, err := pciconfig.Open(configSpacePath, pciconfig.Options{UseFlock: true})
	if err != nil {
		return fmt.Errorf("opening config space at %s: %w", configSpacePath, err)
	}
	defer handle.Close()

	window := smureg.New(handle)
	facade := smu.New(window, smu.Options{AllowQueue0: allowQueue0, PollBudget: defaultPollBudget})

	if ok, err := facade.TestMessage(1); err != nil || !ok {
		return fmt.Errorf("test_message: ok=%v err=%w", ok, err)
	}
	logger.Info("test_message succeeded, SMU mailbox is responsive")

	if dryRun {
		logger.Info("dry-run: exiting without entering the control loop")
		return nil
	}

	sampler, err := openSampler(configSpacePath)
	if err != nil {
		return fmt.Errorf("opening GPU sampler: %w", err)
	}
	defer sampler.Close()

	gov, err := governor.New(cfg, sampler, facade, logger)
	if err != nil {
		return fmt.Errorf("constructing governor: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installUnforceOnExit(logger, facade, cancel)

	return gov.Run(ctx)
}

// resolveConfigSpacePath returns the sysfs config-space path for the target
// device, honoring --bdf when set and otherwise discovering the device and
// refreshing internal/devicecache.
func resolveConfigSpacePath(logger *log.Logger, bdfOverride string) (string, error) {
	if bdfOverride != "" {
		return fmt.Sprintf("/sys/bus/pci/devices/%s/config", bdfOverride), nil
	}

	cachePath, err := devicecache.Path()
	if err == nil {
		if entry, ok, loadErr := devicecache.Load(cachePath); loadErr == nil && ok {
			return entry.ConfigPath, nil
		}
	}

	dev, err := pcidiscover.Find(logger)
	if err != nil {
		return "", err
	}

	if cachePath != "" {
		_ = devicecache.Save(cachePath, devicecache.Entry{BDF: dev.BDF, ConfigPath: dev.ConfigPath})
	}

	return dev.ConfigPath, nil
}

// openSampler derives the sysfs paths for GUI-active MMIO and hwmon
// temperature from the device's PCI sysfs directory, reading BAR0's
// physical address and length from the device's sysfs "resource" file (one
// "start end flags" line per BAR, standard Linux sysfs layout).
func openSampler(configSpacePath string) (*gpusampler.Sampler, error) {
	deviceDir := configSpacePath[:len(configSpacePath)-len("/config")]

	barAddr, barLen, err := readBAR0(deviceDir + "/resource")
	if err != nil {
		return nil, err
	}

	return gpusampler.Open(gpusampler.Options{
		MemPath:        "/dev/mem",
		BarPhysAddr:    barAddr,
		BarLen:         barLen,
		HwmonTempInput: deviceDir + "/hwmon/hwmon0/temp1_input",
		PpDpmSclk:      deviceDir + "/pp_dpm_sclk",
	})
}

// readBAR0 parses the first line of a PCI device's sysfs "resource" file:
// "0xSTART 0xEND 0xFLAGS".
func readBAR0(resourcePath string) (addr int64, length int, err error) {
	data, err := os.ReadFile(resourcePath)
	if err != nil {
		return 0, 0, fmt.Errorf("reading %s: %w", resourcePath, err)
	}

	lines := strings.SplitN(string(data), "\n", 2)
	if len(lines) == 0 {
		return 0, 0, fmt.Errorf("%s has no BAR0 line", resourcePath)
	}

	var start, end uint64
	if _, err := fmt.Sscanf(lines[0], "0x%x 0x%x", &start, &end); err != nil {
		return 0, 0, fmt.Errorf("parsing BAR0 from %s: %w", resourcePath, err)
	}

	return int64(start), int(end - start + 1), nil
}

// installUnforceOnExit releases any forced clock/voltage before the process
// exits on SIGINT/SIGTERM (SPEC_FULL.md §12, supplementing spec.md §9).
func installUnforceOnExit(logger *log.Logger, facade *smu.Facade, cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		logger.Info("received shutdown signal, unforcing clock and voltage")
		if err := facade.UnforceGfxFreq(); err != nil {
			logger.Warn("unforce_gfx_freq failed", "err", err)
		}
		if err := facade.UnforceGfxVid(); err != nil {
			logger.Warn("unforce_gfx_vid failed", "err", err)
		}
		cancel()
	}()
}

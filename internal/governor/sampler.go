package governor

// GpuSampler is the external collaborator that observes the hardware: one
// bit of GUI-active status per poll, the die temperature, and the device's
// advertised clock bounds. spec.md §1 scopes its implementation out of the
// core; internal/gpusampler provides the real one.
type GpuSampler interface {
	PollActive() bool
	ReadTempC() uint32
	MinEngineClockMHz() uint32
	MaxEngineClockMHz() uint32
}

// SmuClient is the narrow subset of internal/smu.Facade the governor
// drives. Defined here (rather than depending on smu.Facade's full surface)
// so tests can supply a lightweight mock.
type SmuClient interface {
	ForceGfxVid(mv uint32) error
	ForceGfxFreq(mhz uint32) error
	GetGfxFrequency() (uint32, error)
	GetGfxVid() (uint32, error)
}

// Package smu assembles the five SMU mailboxes into a small, semantically
// typed façade: test_message, get_gfx_frequency, get_gfx_vid,
// force_gfx_freq, force_gfx_vid, unforce_gfx_freq, unforce_gfx_vid, plus a
// protocol-level gate on the privileged queue 0 and a raw escape hatch for
// the many undocumented SMU commands this façade does not otherwise expose
// (spec.md §9).
package smu

import (
	"math"

	"github.com/cskgov/cyanfreqd/internal/mailbox"
)

// Register is the flat register file a mailbox is built on top of.
// *smureg.Window satisfies it; Facade only needs it to construct mailboxes.
type Register interface {
	Read(addr uint32) (uint32, error)
	Write(addr uint32, value uint32) error
}

// Options configures a Facade.
type Options struct {
	// AllowQueue0 must be explicitly set true to permit any operation on
	// the privileged queue 0. cmd/cyanfreqd sets it from --allow-queue0
	// (default true); bench tooling may leave it false to restrict itself
	// to queues 1-4.
	AllowQueue0 bool
	// PollBudget is the per-mailbox attempt cap passed to every mailbox.
	PollBudget int
}

// Facade is the SMU command surface: a transport-independent set of
// mailboxes plus the typed operations built on top of send_message.
type Facade struct {
	mailboxes   map[uint32]*mailbox.Mailbox
	allowQueue0 bool
}

// New constructs a Facade with one mailbox per queue in spec.md §3, all
// sharing reg (and therefore its underlying index/data window and
// transport).
func New(reg Register, opts Options) *Facade {
	mailboxes := make(map[uint32]*mailbox.Mailbox, len(queueDescriptors))
	for queue, desc := range queueDescriptors {
		mailboxes[queue] = mailbox.New(desc, reg, opts.PollBudget)
	}
	return &Facade{mailboxes: mailboxes, allowQueue0: opts.AllowQueue0}
}

// pack converts a caller-supplied argument into the 32-bit value SMU
// expects it to arrive as.
type pack func(arg uint32) uint32

func packIdentity(arg uint32) uint32 { return arg }

// PackSignExtend16 sign-extends the low 16 bits of arg to 32 bits (i16->u32).
// RawSend callers use it for undocumented commands documented elsewhere to
// take a signed 16-bit argument.
func PackSignExtend16(arg uint32) uint32 {
	return uint32(int32(int16(arg)))
}

// PackFloat32Bits bit-casts v to its float32 representation's raw bits.
// RawSend callers use it for undocumented commands that take an f32
// argument.
func PackFloat32Bits(v float32) uint32 {
	return math.Float32bits(v)
}

// decode converts the argument register's raw value into the scalar a
// caller-facing operation returns.
type decode func(raw uint32) uint32

func decodeIdentity(raw uint32) uint32 { return raw }

// sendMessage is the generic engine spec.md §4.4 describes: guard queue 0,
// look up the mailbox, pack the argument, run the mailbox round, optionally
// enforce Ok status, and optionally decode the result from the argument
// register.
func (f *Facade) sendMessage(queue, msgID, arg uint32, argHi *uint32, p pack, d decode, checkStatus bool) (uint32, error) {
	if queue == Queue0Privileged && !f.allowQueue0 {
		return 0, ErrQueue0Disabled
	}

	mb, ok := f.mailboxes[queue]
	if !ok {
		return 0, &ErrQueueNotConfigured{Queue: queue}
	}

	packed := arg
	if p != nil {
		packed = p(arg)
	}

	status, err := mb.Send(msgID, packed, argHi)
	if err != nil {
		return 0, err
	}

	if checkStatus && status != mailbox.StatusOk {
		return 0, &ErrSmuStatus{Status: status, Queue: queue, Msg: msgID}
	}

	if d == nil {
		return uint32(status), nil
	}

	raw, err := mb.ReadArg()
	if err != nil {
		return 0, err
	}
	return d(raw), nil
}

// TestMessage succeeds iff the argument register reads back v+1.
func (f *Facade) TestMessage(v uint32) (bool, error) {
	got, err := f.sendMessage(Queue3Advanced, msgTestMessage, v, nil, packIdentity, decodeIdentity, true)
	if err != nil {
		return false, err
	}
	if want := v + 1; got != want {
		return false, &ErrTestMessageFailed{Expected: want, Actual: got}
	}
	return true, nil
}

// GetGfxFrequency returns the current GFX clock in MHz.
func (f *Facade) GetGfxFrequency() (uint32, error) {
	return f.sendMessage(Queue0Privileged, msgGetGfxFreq, 0, nil, nil, decodeIdentity, true)
}

// GetGfxVid returns the current GFX voltage in millivolts, decoded from the
// raw VID the SMU reports.
func (f *Facade) GetGfxVid() (uint32, error) {
	return f.sendMessage(Queue0Privileged, msgGetGfxVid, 0, nil, nil, VidToMv, true)
}

// ForceGfxFreq forces the GFX clock to mhz.
func (f *Facade) ForceGfxFreq(mhz uint32) error {
	_, err := f.sendMessage(Queue0Privileged, msgForceGfxFreq, mhz, nil, packIdentity, nil, true)
	return err
}

// UnforceGfxFreq releases a prior ForceGfxFreq, returning clock control to
// firmware.
func (f *Facade) UnforceGfxFreq() error {
	_, err := f.sendMessage(Queue0Privileged, msgUnforceGfxFreq, 0, nil, nil, nil, true)
	return err
}

// ForceGfxVid forces the GFX voltage to mv, packed as the nearest VID.
func (f *Facade) ForceGfxVid(mv uint32) error {
	_, err := f.sendMessage(Queue0Privileged, msgForceGfxVid, mv, nil, MvToVid, nil, true)
	return err
}

// UnforceGfxVid releases a prior ForceGfxVid. The firmware is documented to
// return a non-Ok status on success for this particular command, so
// check_status is disabled here — matching spec.md §4.4's note on this
// operation.
func (f *Facade) UnforceGfxVid() error {
	_, err := f.sendMessage(Queue0Privileged, msgUnforceGfxVid, 0, nil, nil, nil, false)
	return err
}

// RawSend issues an arbitrary (msg, argLo, argHi) request on queue and
// returns the raw status, without any of the typed packing/decoding the
// operations above apply. It is the escape hatch spec.md §9 recommends in
// place of per-command wrappers for undocumented SMU commands.
func (f *Facade) RawSend(queue, msg, argLo uint32, argHi *uint32) (mailbox.Status, error) {
	if queue == Queue0Privileged && !f.allowQueue0 {
		return 0, ErrQueue0Disabled
	}
	mb, ok := f.mailboxes[queue]
	if !ok {
		return 0, &ErrQueueNotConfigured{Queue: queue}
	}
	return mb.Send(msg, argLo, argHi)
}

// RawRead returns the current (argLo, argHi) register pair for queue,
// without issuing a new request.
func (f *Facade) RawRead(queue uint32) (argLo, argHi uint32, err error) {
	if queue == Queue0Privileged && !f.allowQueue0 {
		return 0, 0, ErrQueue0Disabled
	}
	mb, ok := f.mailboxes[queue]
	if !ok {
		return 0, 0, &ErrQueueNotConfigured{Queue: queue}
	}
	lo, err := mb.ReadArg()
	if err != nil {
		return 0, 0, err
	}
	hi, err := mb.ReadArgHigh()
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

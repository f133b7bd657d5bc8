package smu

import "github.com/cskgov/cyanfreqd/internal/mailbox"

// Queue ids, as named in spec.md §3.
const (
	Queue0Privileged uint32 = 0
	Queue1Auxiliary  uint32 = 1
	Queue2Identity   uint32 = 2
	Queue3Advanced   uint32 = 3
	Queue4Auxiliary2 uint32 = 4
)

// queueDescriptors is the fixed register map for Cyan Skillfish's five SMU
// queues (spec.md §3). It never changes at runtime; Facade copies it into
// mailboxes at construction.
var queueDescriptors = map[uint32]mailbox.Descriptor{
	Queue0Privileged: {Cmd: 0x03B10A08, Rsp: 0x03B10A68, ArgLo: 0x03B10A48},
	Queue1Auxiliary:  {Cmd: 0x03B10A00, Rsp: 0x03B10A60, ArgLo: 0x03B10A40},
	Queue2Identity:   {Cmd: 0x03B10528, Rsp: 0x03B10564, ArgLo: 0x03B10998},
	Queue3Advanced:   {Cmd: 0x03B10A20, Rsp: 0x03B10A80, ArgLo: 0x03B10A88},
	Queue4Auxiliary2: {Cmd: 0x03B10A24, Rsp: 0x03B10A84, ArgLo: 0x03B10A8C},
}

// Message ids for the required high-level operations (spec.md §4.4).
const (
	msgTestMessage    uint32 = 0x01
	msgGetGfxFreq     uint32 = 0x37
	msgGetGfxVid      uint32 = 0x38
	msgForceGfxFreq   uint32 = 0x39
	msgUnforceGfxFreq uint32 = 0x3A
	msgForceGfxVid    uint32 = 0x3B
	msgUnforceGfxVid  uint32 = 0x3C
)

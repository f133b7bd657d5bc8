package smu

import (
	"errors"
	"fmt"

	"github.com/cskgov/cyanfreqd/internal/mailbox"
)

// ErrQueue0Disabled is returned when a queue-0 operation is attempted
// against a façade constructed with allow_queue0 = false. It is a
// protocol-level interlock, not a security boundary: queue 0 is the
// firmware's privileged queue and some of its messages are destructive.
var ErrQueue0Disabled = errors.New("smu: queue 0 disabled")

// ErrTestMessageFailed is returned by TestMessage when the argument-register
// readback does not match v+1.
type ErrTestMessageFailed struct {
	Expected uint32
	Actual   uint32
}

func (e *ErrTestMessageFailed) Error() string {
	return fmt.Sprintf("smu: test message failed: expected %d, got %d", e.Expected, e.Actual)
}

// ErrQueueNotConfigured is returned when a queue id has no mailbox.
type ErrQueueNotConfigured struct {
	Queue uint32
}

func (e *ErrQueueNotConfigured) Error() string {
	return fmt.Sprintf("smu: queue %d not configured", e.Queue)
}

// ErrSmuStatus is returned when send_message's check_status rejects a
// non-Ok recognized status.
type ErrSmuStatus struct {
	Status mailbox.Status
	Queue  uint32
	Msg    uint32
}

func (e *ErrSmuStatus) Error() string {
	return fmt.Sprintf("smu: queue %d msg %#x returned status %#x", e.Queue, e.Msg, byte(e.Status))
}

// ErrTimeout re-exports mailbox.ErrTimeout so callers of this package don't
// need to import internal/mailbox just to check errors.Is(err, ErrTimeout).
var ErrTimeout = mailbox.ErrTimeout

// input_events.go - Bounded input event queue shared between host and guest

/*
input_events.go - Input event channel

The host (window backend, serial console, tests) pushes mouse and
keyboard events; the guest drains them one at a time through the
read-input-event syscall, which marshals each event as a fixed 32-byte
little-endian record. The queue is a 64-slot ring; when full, the oldest
events win and the incoming event is dropped. A mutex makes Push safe
from the host render thread while the VM thread pops.
*/

package main

import (
	"encoding/binary"
	"sync"
)

// ------------------------------------------------------------------------------
// Event Identification
// ------------------------------------------------------------------------------
const (
	INPUT_DEVICE_MOUSE    = 1
	INPUT_DEVICE_KEYBOARD = 2

	INPUT_KIND_PRESS   = 1
	INPUT_KIND_RELEASE = 2
	INPUT_KIND_MOVE    = 3

	INPUT_MOD_SHIFT = 1 << 0
	INPUT_MOD_CTRL  = 1 << 1
	INPUT_MOD_ALT   = 1 << 2

	INPUT_QUEUE_CAP   = 64
	INPUT_RECORD_SIZE = 32
)

// InputEvent is one host input occurrence. The guest-visible record is
// the eight 32-bit fields below in order, little-endian.
type InputEvent struct {
	Device uint32
	Kind   uint32
	Code   uint32 // mouse button or key code
	Char   uint32 // translated character, keyboard only
	X      int32
	Y      int32
	Mods   uint32
	Seq    uint32 // monotonic stamp assigned on push
}

// Marshal writes the fixed 32-byte guest record.
func (ev *InputEvent) Marshal(out []byte) {
	binary.LittleEndian.PutUint32(out[0:], ev.Device)
	binary.LittleEndian.PutUint32(out[4:], ev.Kind)
	binary.LittleEndian.PutUint32(out[8:], ev.Code)
	binary.LittleEndian.PutUint32(out[12:], ev.Char)
	binary.LittleEndian.PutUint32(out[16:], uint32(ev.X))
	binary.LittleEndian.PutUint32(out[20:], uint32(ev.Y))
	binary.LittleEndian.PutUint32(out[24:], ev.Mods)
	binary.LittleEndian.PutUint32(out[28:], ev.Seq)
}

// InputQueue is the bounded ring between host producers and the guest.
type InputQueue struct {
	mutex  sync.Mutex
	events [INPUT_QUEUE_CAP]InputEvent
	head   int
	count  int
	seq    uint32
	drops  uint64
}

func NewInputQueue() *InputQueue {
	return &InputQueue{}
}

// Push enqueues an event. On overflow the oldest events win: the new
// event is discarded and the drop counter bumped.
func (q *InputQueue) Push(ev InputEvent) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.count == INPUT_QUEUE_CAP {
		q.drops++
		return false
	}
	q.seq++
	ev.Seq = q.seq
	q.events[(q.head+q.count)%INPUT_QUEUE_CAP] = ev
	q.count++
	return true
}

// Pop dequeues the oldest event; ok=false when empty.
func (q *InputQueue) Pop() (InputEvent, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.count == 0 {
		return InputEvent{}, false
	}
	ev := q.events[q.head]
	q.head = (q.head + 1) % INPUT_QUEUE_CAP
	q.count--
	return ev, true
}

func (q *InputQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.count
}

func (q *InputQueue) Drops() uint64 {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.drops
}

func (q *InputQueue) Clear() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.head = 0
	q.count = 0
}

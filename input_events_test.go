package main

import (
	"encoding/binary"
	"testing"
)

func TestInputQueue_FIFO(t *testing.T) {
	q := NewInputQueue()
	for i := 0; i < 5; i++ {
		q.Push(InputEvent{Device: INPUT_DEVICE_KEYBOARD, Code: uint32(i)})
	}
	for i := 0; i < 5; i++ {
		ev, ok := q.Pop()
		if !ok || ev.Code != uint32(i) {
			t.Fatalf("pop %d = (%+v, %v)", i, ev, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("pop from empty queue succeeded")
	}
}

// On overflow the oldest events win; the incoming one is dropped.
func TestInputQueue_OverflowDropsNewest(t *testing.T) {
	q := NewInputQueue()
	for i := 0; i < INPUT_QUEUE_CAP; i++ {
		if !q.Push(InputEvent{Code: uint32(i)}) {
			t.Fatalf("push %d refused below capacity", i)
		}
	}
	if q.Push(InputEvent{Code: 999}) {
		t.Fatal("push beyond capacity accepted")
	}
	if q.Drops() != 1 {
		t.Fatalf("drops = %d, want 1", q.Drops())
	}
	ev, _ := q.Pop()
	if ev.Code != 0 {
		t.Fatalf("oldest event = %d, want 0", ev.Code)
	}
}

func TestInputQueue_SequenceStamps(t *testing.T) {
	q := NewInputQueue()
	q.Push(InputEvent{})
	q.Push(InputEvent{})
	a, _ := q.Pop()
	b, _ := q.Pop()
	if b.Seq != a.Seq+1 {
		t.Fatalf("sequence %d then %d, want monotonic", a.Seq, b.Seq)
	}
}

func TestInputEvent_MarshalLayout(t *testing.T) {
	ev := InputEvent{
		Device: INPUT_DEVICE_MOUSE,
		Kind:   INPUT_KIND_MOVE,
		Code:   2,
		Char:   'x',
		X:      -5,
		Y:      7,
		Mods:   INPUT_MOD_ALT,
		Seq:    9,
	}
	var rec [INPUT_RECORD_SIZE]byte
	ev.Marshal(rec[:])
	fields := []uint32{
		INPUT_DEVICE_MOUSE, INPUT_KIND_MOVE, 2, 'x',
		uint32(int32(-5)), 7, INPUT_MOD_ALT, 9,
	}
	for i, want := range fields {
		if got := binary.LittleEndian.Uint32(rec[i*4:]); got != want {
			t.Fatalf("field %d = 0x%X, want 0x%X", i, got, want)
		}
	}
}

// snapshot.go - Machine state snapshot for save/restore

package main

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	snapshotMagic   = "IRVS"
	snapshotVersion = 1
)

// Snapshot captures the complete execution state: registers, PC, the
// whole memory buffer, lifecycle state, last fault and counters. It is
// created on demand, read-only thereafter, and owns its copied buffers.
// The error log is advisory and deliberately not captured.
type Snapshot struct {
	Regs        [32]uint64
	PC          uint64
	Memory      []byte
	State       int
	LastError   Fault
	Perf        PerfCounters
	FaultCounts [5]uint64
}

// SaveState copies the current architectural state.
func (vm *RV64) SaveState() *Snapshot {
	snap := &Snapshot{
		Regs:        vm.regs,
		PC:          vm.pc,
		Memory:      make([]byte, len(vm.memory)),
		State:       vm.state.Load(),
		LastError:   vm.lastError,
		Perf:        vm.perf,
		FaultCounts: vm.faultCounts,
	}
	copy(snap.Memory, vm.memory)
	return snap
}

// RestoreState overwrites the VM with a snapshot. The memory geometry
// must match; the JIT cache is cleared because stale translations may
// not reflect restored code bytes.
func (vm *RV64) RestoreState(snap *Snapshot) error {
	if len(snap.Memory) != len(vm.memory) {
		return fmt.Errorf("RV64: snapshot memory is %d bytes, VM has %d",
			len(snap.Memory), len(vm.memory))
	}
	vm.regs = snap.Regs
	vm.regs[0] = 0
	vm.pc = snap.PC
	copy(vm.memory, snap.Memory)
	vm.state.Store(snap.State)
	vm.lastError = snap.LastError
	vm.perf = snap.Perf
	vm.faultCounts = snap.FaultCounts
	if vm.jit != nil {
		vm.jit.ClearCache()
	}
	return nil
}

// SaveSnapshotToFile writes a snapshot to disk with gzip-compressed
// memory. The layout is magic, version, registers+PC, state word, fault
// word, counters, then length-prefixed compressed memory.
func SaveSnapshotToFile(snap *Snapshot, path string) error {
	var buf bytes.Buffer

	buf.WriteString(snapshotMagic)
	binary.Write(&buf, binary.LittleEndian, uint32(snapshotVersion))

	for _, r := range snap.Regs {
		binary.Write(&buf, binary.LittleEndian, r)
	}
	binary.Write(&buf, binary.LittleEndian, snap.PC)
	binary.Write(&buf, binary.LittleEndian, uint32(snap.State))
	binary.Write(&buf, binary.LittleEndian, uint32(snap.LastError))
	binary.Write(&buf, binary.LittleEndian, snap.Perf)
	for _, n := range snap.FaultCounts {
		binary.Write(&buf, binary.LittleEndian, n)
	}

	binary.Write(&buf, binary.LittleEndian, uint32(len(snap.Memory)))
	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(snap.Memory); err != nil {
		return fmt.Errorf("compressing memory: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing gzip: %w", err)
	}
	buf.Write(compressed.Bytes())

	return os.WriteFile(path, buf.Bytes(), 0644)
}

// LoadSnapshotFromFile reads and decompresses a snapshot from disk.
func LoadSnapshotFromFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != snapshotMagic {
		return nil, fmt.Errorf("invalid snapshot magic: %q", string(magic))
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}

	snap := &Snapshot{}
	for i := range snap.Regs {
		if err := binary.Read(r, binary.LittleEndian, &snap.Regs[i]); err != nil {
			return nil, fmt.Errorf("reading registers: %w", err)
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &snap.PC); err != nil {
		return nil, fmt.Errorf("reading PC: %w", err)
	}
	var state, lastError uint32
	if err := binary.Read(r, binary.LittleEndian, &state); err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &lastError); err != nil {
		return nil, fmt.Errorf("reading fault: %w", err)
	}
	snap.State = int(state)
	snap.LastError = Fault(lastError)
	if err := binary.Read(r, binary.LittleEndian, &snap.Perf); err != nil {
		return nil, fmt.Errorf("reading counters: %w", err)
	}
	for i := range snap.FaultCounts {
		if err := binary.Read(r, binary.LittleEndian, &snap.FaultCounts[i]); err != nil {
			return nil, fmt.Errorf("reading fault counts: %w", err)
		}
	}

	var memLen uint32
	if err := binary.Read(r, binary.LittleEndian, &memLen); err != nil {
		return nil, fmt.Errorf("reading memory length: %w", err)
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening gzip: %w", err)
	}
	defer gz.Close()
	snap.Memory = make([]byte, memLen)
	if _, err := io.ReadFull(gz, snap.Memory); err != nil {
		return nil, fmt.Errorf("decompressing memory: %w", err)
	}
	return snap, nil
}

// jit_context.go - JIT code arena, block cache and fixup bookkeeping

/*
jit_context.go - JIT context

Owns the 64MB W^X code arena, the block-offset cache and the
pending-fixup table. The arena is mapped READ|WRITE|EXEC once and a
monotonic 4-byte-aligned cursor hands out block space; entries never
relocate. Clearing the cache is the only invalidation: there is no
write-watch on guest code, so self-modifying guests must clear or stay
on the interpreter. On Apple Silicon the per-thread JIT write-protect
switch is flipped around emission (jit_arena_darwin.go) and the
instruction cache is invalidated for every emitted range.
*/

package main

import (
	"fmt"
	"runtime"
	"unsafe"
)

// ------------------------------------------------------------------------------
// Arena Geometry
// ------------------------------------------------------------------------------
const (
	JIT_ARENA_SIZE    = 64 * 1024 * 1024
	JIT_BLOCK_CAP     = 100 // guest instructions per block before a synthetic return
	JIT_CACHE_RESERVE = 10000
)

// jitGuestState is the state block shared with translated code: the 32
// GPRs then the PC, in that exact layout. Translated code addresses it
// through the pinned state base register.
type jitGuestState struct {
	Regs [32]uint64
	PC   uint64
}

const JIT_STATE_PC_OFFSET = 32 * 8

type jitFixup struct {
	site   uint32 // arena offset of the pending B / B.cond
	target uint64 // guest PC awaited
}

type JITContext struct {
	code   []byte
	mapped bool // mmap-backed (false for the test-only buffer arena)
	cursor uint32

	blockCache map[uint64]uint32
	fixups     map[uint64][]jitFixup

	memSize uint64
	fbSize  uint64
}

// NewJITContext maps the executable arena. Only arm64 hosts can enter
// translated code, so enabling elsewhere is refused up front.
func NewJITContext(memSize, fbSize uint64) (*JITContext, error) {
	if runtime.GOARCH != "arm64" {
		return nil, fmt.Errorf("JIT: host architecture %s is not arm64", runtime.GOARCH)
	}
	code, err := arenaMap(JIT_ARENA_SIZE)
	if err != nil {
		return nil, fmt.Errorf("JIT: mapping code arena: %w", err)
	}
	return &JITContext{
		code:       code,
		mapped:     true,
		blockCache: make(map[uint64]uint32, JIT_CACHE_RESERVE),
		fixups:     make(map[uint64][]jitFixup),
		memSize:    memSize,
		fbSize:     fbSize,
	}, nil
}

// newBufferJITContext backs the arena with a plain slice. Translation and
// fixup tests use it on any host; nothing from it is ever executed.
func newBufferJITContext(size int, memSize, fbSize uint64) *JITContext {
	return &JITContext{
		code:       make([]byte, size),
		blockCache: make(map[uint64]uint32, JIT_CACHE_RESERVE),
		fixups:     make(map[uint64][]jitFixup),
		memSize:    memSize,
		fbSize:     fbSize,
	}
}

func (j *JITContext) Close() {
	if j.mapped {
		arenaUnmap(j.code)
	}
	j.code = nil
}

// ClearCache forgets every translation and pending fixup and rewinds the
// cursor. The sole supported invalidation.
func (j *JITContext) ClearCache() {
	j.cursor = 0
	j.blockCache = make(map[uint64]uint32, JIT_CACHE_RESERVE)
	j.fixups = make(map[uint64][]jitFixup)
}

func (j *JITContext) CachedBlocks() int { return len(j.blockCache) }

// Lookup returns the arena offset for a translated block entry.
func (j *JITContext) Lookup(pc uint64) (uint32, bool) {
	off, ok := j.blockCache[pc]
	return off, ok
}

// drainFixups patches every pending branch waiting on pc, now that its
// block lands at `offset`, then clears the chain.
func (j *JITContext) drainFixups(pc uint64, offset uint32) {
	chain, ok := j.fixups[pc]
	if !ok {
		return
	}
	for _, f := range chain {
		j.patchBranch(f.site, offset)
	}
	delete(j.fixups, pc)
}

func (j *JITContext) addFixup(target uint64, site uint32) {
	j.fixups[target] = append(j.fixups[target], jitFixup{site: site, target: target})
}

// PendingFixups reports outstanding sites for a target PC (testing tap).
func (j *JITContext) PendingFixups(target uint64) int {
	return len(j.fixups[target])
}

// ------------------------------------------------------------------------------
// Engine API
// ------------------------------------------------------------------------------

// EnableJIT allocates the code arena and bindings. The VM must be
// initialised with JIT still disabled.
func (vm *RV64) EnableJIT() error {
	if vm.jit != nil {
		return fmt.Errorf("RV64: JIT already enabled")
	}
	if vm.state.Load() == VM_RUNNING {
		return fmt.Errorf("RV64: cannot enable JIT while running")
	}
	ctx, err := NewJITContext(vm.memSize, vm.fbSize)
	if err != nil {
		return err
	}
	vm.jit = ctx
	return nil
}

func (vm *RV64) JITEnabled() bool { return vm.jit != nil }

// StepJIT executes one block through the JIT. With the JIT disabled it
// runs a single interpreter step; when translation of the current block
// fails it also runs a single interpreter step and counts the fallback.
func (vm *RV64) StepJIT() error {
	if vm.state.Load() != VM_RUNNING {
		return nil
	}
	if vm.jit == nil {
		return vm.Step()
	}

	offset, hit, err := vm.jit.TranslateBlock(vm, vm.pc)
	if err != nil {
		vm.perf.InterpFallbacks++
		return vm.Step()
	}
	if hit {
		vm.perf.CacheHits++
	} else {
		vm.perf.BlocksTranslated++
	}
	vm.hot.RecordExecution(vm.pc)

	var st jitGuestState
	st.Regs = vm.regs
	st.PC = vm.pc
	vm.jit.run(offset, &st, vm.memory)
	st.Regs[0] = 0
	vm.regs = st.Regs
	vm.pc = st.PC
	vm.perf.BlocksEntered++

	if vm.pc%2 != 0 {
		return vm.raiseFault(FAULT_UNALIGNED_INSTRUCTION, vm.pc)
	}
	return nil
}

// run enters translated code through the pinned-register trampoline.
func (j *JITContext) run(offset uint32, st *jitGuestState, mem []byte) {
	enterBlock(uintptr(unsafe.Pointer(&j.code[0]))+uintptr(offset),
		unsafe.Pointer(st), unsafe.Pointer(&mem[0]))
}

// jit_translate.go - Guest basic-block translation to AArch64

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionRV
Buy me a coffee: https://ko-fi.com/intuition/tip

License: GPLv3 or later
*/

/*
jit_translate.go - Template translator

Translates one guest basic block per call: from the entry PC to the
first unconditional jump (JAL), computed jump (JALR, always a return to
the trampoline), or the block cap, whichever comes first. Conditional
branches do not terminate a block; they become host conditional branches
into the target block's arena offset — direct when the target is already
translated, otherwise aimed at a local exit stub and recorded in the
pending-fixup table so the later translation of the target patches the
branch direct. Guest memory accesses inline the three-window address
translation and a bounds compare that exits to the interpreter on miss.

The PC->offset cache binding is inserted before emission so a block can
branch back to its own entry. ECALL is never translated: a block ends
before it and the interpreter performs the syscall step.
*/

package main

import "fmt"

// JIT_BLOCK_MAX_BYTES is the reservation checked before a block starts;
// the worst-case emission for a capped block stays well inside it.
const JIT_BLOCK_MAX_BYTES = 24576

// TranslateBlock returns the arena offset of the block starting at pc,
// translating it on a cache miss. hit reports whether the cache already
// held the block. Errors mean nothing was emitted and the caller should
// fall back to the interpreter.
func (j *JITContext) TranslateBlock(vm *RV64, pc uint64) (uint32, bool, error) {
	if off, ok := j.blockCache[pc]; ok {
		return off, true, nil
	}
	if int(j.cursor)+JIT_BLOCK_MAX_BYTES > len(j.code) {
		return 0, false, fmt.Errorf("JIT: code arena exhausted at %d bytes", j.cursor)
	}

	// Probe the first instruction before binding the cache entry, so a
	// block that cannot start (ECALL, undefined encoding, bad fetch)
	// leaves the cache and fixup table untouched.
	d, ok := j.peekDecoded(vm, pc)
	if !ok || !j.translatable(d) {
		return 0, false, fmt.Errorf("JIT: cannot translate block head at 0x%X", pc)
	}

	arenaWriteEnable()
	defer arenaWriteDisable()

	offset := j.cursor
	j.blockCache[pc] = offset
	j.drainFixups(pc, offset)

	cur := pc
	for count := 0; count < JIT_BLOCK_CAP; count++ {
		d, ok := j.peekDecoded(vm, cur)
		if !ok || !j.translatable(d) {
			// Mid-block stop: hand the offending PC back to the
			// interpreter, which raises the fault or runs the syscall.
			j.emitExit(cur)
			j.finishBlock(offset)
			return offset, false, nil
		}
		terminated := j.translateOne(vm, d, cur)
		if terminated {
			j.finishBlock(offset)
			return offset, false, nil
		}
		cur += uint64(d.Len)
	}

	// Block cap: synthetic return with the PC of the next instruction.
	j.emitExit(cur)
	j.finishBlock(offset)
	return offset, false, nil
}

func (j *JITContext) peekDecoded(vm *RV64, pc uint64) (Decoded, bool) {
	raw, length, ok := vm.peekWord(pc)
	if !ok {
		return Decoded{}, false
	}
	return decodeAny(raw, length)
}

// translatable reports whether the translator has a template for the
// instruction. ECALL, everything SYSTEM-shaped and undefined sub-encodings
// stay interpreted.
func (j *JITContext) translatable(d Decoded) bool {
	switch d.Opcode {
	case OPC_LUI, OPC_AUIPC, OPC_JAL, OPC_JALR:
		return true
	case OPC_OP_IMM:
		if d.Funct3 == 1 {
			return d.Raw>>26 == 0
		}
		if d.Funct3 == 5 {
			return d.Raw>>26 == 0 || d.Raw>>26 == 0x10
		}
		return true
	case OPC_OP:
		_, ok := aluReg(d, 0, 0)
		return ok
	case OPC_LOAD:
		return d.Funct3 != 7
	case OPC_STORE:
		return d.Funct3 <= 3
	case OPC_BRANCH:
		_, ok := jitBranchCond[d.Funct3]
		return ok
	}
	return false
}

func (j *JITContext) finishBlock(offset uint32) {
	flushICache(j.code[offset:j.cursor])
}

// ------------------------------------------------------------------------------
// Per-Instruction Emission
// ------------------------------------------------------------------------------

// loadGuestReg brings a guest register into a scratch host register; x0
// materialises as the constant zero.
func (j *JITContext) loadGuestReg(host int, guest uint32) {
	if guest == 0 {
		j.emitMovZ(host, 0, 0)
		return
	}
	j.emitLdrState(host, guest*8)
}

func (j *JITContext) storeGuestReg(guest uint32, host int) {
	if guest == 0 {
		return // x0 writes are dropped
	}
	j.emitStrState(host, guest*8)
}

// emitExit stores the given guest PC and returns to the trampoline.
func (j *JITContext) emitExit(pc uint64) {
	j.emitMovU64(JIT_SCRATCH0, pc)
	j.emitStrState(JIT_SCRATCH0, JIT_STATE_PC_OFFSET)
	j.emitRet()
}

// jitExitStubBytes is the arena footprint of emitExit.
const jitExitStubBytes = 4*4 + 4 + 4

// translateOne emits the host sequence for one guest instruction.
// Returns true when the instruction terminates the block.
func (j *JITContext) translateOne(vm *RV64, d Decoded, pc uint64) bool {
	switch d.Opcode {
	case OPC_LUI:
		j.emitMovU64(JIT_SCRATCH0, uint64(int64(d.Imm)))
		j.storeGuestReg(d.Rd, JIT_SCRATCH0)

	case OPC_AUIPC:
		j.emitMovU64(JIT_SCRATCH0, pc+uint64(int64(d.Imm)))
		j.storeGuestReg(d.Rd, JIT_SCRATCH0)

	case OPC_OP_IMM:
		j.translateOpImm(d)

	case OPC_OP:
		j.translateOpReg(d)

	case OPC_LOAD:
		j.translateLoad(d, pc)

	case OPC_STORE:
		j.translateStore(d, pc)

	case OPC_BRANCH:
		j.translateBranch(d, pc)

	case OPC_JAL:
		target := pc + uint64(int64(d.Imm))
		if target%4 != 0 {
			// Exit before any state write so the interpreter re-executes
			// the jump and raises the alignment fault cleanly.
			j.emitExit(pc)
			return true
		}
		if d.Rd != 0 {
			j.emitMovU64(JIT_SCRATCH0, pc+uint64(d.Len))
			j.storeGuestReg(d.Rd, JIT_SCRATCH0)
		}
		j.emitJump(target)
		return true

	case OPC_JALR:
		// Target first: rd may alias rs1.
		j.loadGuestReg(JIT_SCRATCH0, d.Rs1)
		j.emitMovU64(JIT_SCRATCH1, uint64(int64(d.Imm)))
		j.emitAdd(JIT_SCRATCH0, JIT_SCRATCH0, JIT_SCRATCH1)
		j.emitMovU64(JIT_SCRATCH1, ^uint64(3))
		j.emitAnd(JIT_SCRATCH0, JIT_SCRATCH0, JIT_SCRATCH1)
		if d.Rd != 0 {
			j.emitMovU64(JIT_SCRATCH1, pc+uint64(d.Len))
			j.storeGuestReg(d.Rd, JIT_SCRATCH1)
		}
		j.emitStrState(JIT_SCRATCH0, JIT_STATE_PC_OFFSET)
		j.emitRet()
		return true
	}
	return false
}

func (j *JITContext) translateOpImm(d Decoded) {
	j.loadGuestReg(JIT_SCRATCH0, d.Rs1)
	switch d.Funct3 {
	case 0: // ADDI
		j.emitMovU64(JIT_SCRATCH1, uint64(int64(d.Imm)))
		j.emitAdd(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
	case 1: // SLLI
		j.emitLslI(JIT_SCRATCH2, JIT_SCRATCH0, int(d.Raw>>20&0x3F))
	case 2: // SLTI
		j.emitMovU64(JIT_SCRATCH1, uint64(int64(d.Imm)))
		j.emitSubs(JIT_REG_XZR, JIT_SCRATCH0, JIT_SCRATCH1)
		j.emitCset(JIT_SCRATCH2, COND_LT)
	case 3: // SLTIU
		j.emitMovU64(JIT_SCRATCH1, uint64(int64(d.Imm)))
		j.emitSubs(JIT_REG_XZR, JIT_SCRATCH0, JIT_SCRATCH1)
		j.emitCset(JIT_SCRATCH2, COND_CC)
	case 4: // XORI
		j.emitMovU64(JIT_SCRATCH1, uint64(int64(d.Imm)))
		j.emitEor(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
	case 5: // SRLI / SRAI
		shamt := int(d.Raw >> 20 & 0x3F)
		if d.Raw&0x40000000 != 0 {
			j.emitAsrI(JIT_SCRATCH2, JIT_SCRATCH0, shamt)
		} else {
			j.emitLsrI(JIT_SCRATCH2, JIT_SCRATCH0, shamt)
		}
	case 6: // ORI
		j.emitMovU64(JIT_SCRATCH1, uint64(int64(d.Imm)))
		j.emitOrr(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
	case 7: // ANDI
		j.emitMovU64(JIT_SCRATCH1, uint64(int64(d.Imm)))
		j.emitAnd(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
	}
	j.storeGuestReg(d.Rd, JIT_SCRATCH2)
}

func (j *JITContext) translateOpReg(d Decoded) {
	j.loadGuestReg(JIT_SCRATCH0, d.Rs1)
	j.loadGuestReg(JIT_SCRATCH1, d.Rs2)
	switch d.Funct3 {
	case 0:
		if d.Funct7 == 0x20 {
			j.emitSub(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
		} else {
			j.emitAdd(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
		}
	case 1: // SLL
		j.emitLslV(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
	case 2: // SLT
		j.emitSubs(JIT_REG_XZR, JIT_SCRATCH0, JIT_SCRATCH1)
		j.emitCset(JIT_SCRATCH2, COND_LT)
	case 3: // SLTU
		j.emitSubs(JIT_REG_XZR, JIT_SCRATCH0, JIT_SCRATCH1)
		j.emitCset(JIT_SCRATCH2, COND_CC)
	case 4: // XOR
		j.emitEor(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
	case 5:
		if d.Funct7 == 0x20 {
			j.emitAsrV(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
		} else {
			j.emitLsrV(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
		}
	case 6: // OR
		j.emitOrr(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
	case 7: // AND
		j.emitAnd(JIT_SCRATCH2, JIT_SCRATCH0, JIT_SCRATCH1)
	}
	j.storeGuestReg(d.Rd, JIT_SCRATCH2)
}

// emitTranslateAddr lowers the three-window translation for the guest
// address in X0, leaving the physical offset in X1. Framebuffer wins
// over kernel wins over identity; the forward branches are patched when
// the join is known. A bounds compare follows: on a physical offset
// past memSize-width the block exits to the interpreter at `pc`, which
// re-executes the access and raises the architectural fault.
func (j *JITContext) emitTranslateAddr(pc uint64, width int) {
	j.emitMovU64(JIT_SCRATCH2, FB_BASE)
	j.emitSubs(JIT_SCRATCH1, JIT_SCRATCH0, JIT_SCRATCH2)
	fbBr := j.cursor
	j.emitBCond(COND_CS, 0)

	j.emitMovU64(JIT_SCRATCH2, KERNEL_BASE)
	j.emitSubs(JIT_SCRATCH1, JIT_SCRATCH0, JIT_SCRATCH2)
	kernelBr := j.cursor
	j.emitBCond(COND_CS, 0)

	j.emitOrr(JIT_SCRATCH1, JIT_REG_XZR, JIT_SCRATCH0) // identity
	idBr := j.cursor
	j.emitB(0)

	fbCase := j.cursor
	j.patchBranch(fbBr, fbCase)
	j.emitMovU64(JIT_SCRATCH2, j.memSize-j.fbSize)
	j.emitAdd(JIT_SCRATCH1, JIT_SCRATCH1, JIT_SCRATCH2)

	done := j.cursor
	j.patchBranch(kernelBr, done)
	j.patchBranch(idBr, done)

	j.emitMovU64(JIT_SCRATCH2, j.memSize-uint64(width)+1)
	j.emitSubs(JIT_REG_XZR, JIT_SCRATCH1, JIT_SCRATCH2)
	okBr := j.cursor
	j.emitBCond(COND_CC, 0)
	j.emitExit(pc)
	j.patchBranch(okBr, j.cursor)
}

var jitLoadWidth = [8]int{1, 2, 4, 8, 1, 2, 4, 8}

func (j *JITContext) translateLoad(d Decoded, pc uint64) {
	j.loadGuestReg(JIT_SCRATCH0, d.Rs1)
	if d.Imm != 0 {
		j.emitMovU64(JIT_SCRATCH1, uint64(int64(d.Imm)))
		j.emitAdd(JIT_SCRATCH0, JIT_SCRATCH0, JIT_SCRATCH1)
	}
	width := jitLoadWidth[d.Funct3]
	j.emitTranslateAddr(pc, width)
	signed := d.Funct3 < 4
	j.emitLdrReg(JIT_SCRATCH3, JIT_SCRATCH1, width, signed)
	j.storeGuestReg(d.Rd, JIT_SCRATCH3)
}

func (j *JITContext) translateStore(d Decoded, pc uint64) {
	j.loadGuestReg(JIT_SCRATCH0, d.Rs1)
	if d.Imm != 0 {
		j.emitMovU64(JIT_SCRATCH1, uint64(int64(d.Imm)))
		j.emitAdd(JIT_SCRATCH0, JIT_SCRATCH0, JIT_SCRATCH1)
	}
	width := jitLoadWidth[d.Funct3&3]
	j.emitTranslateAddr(pc, width)
	j.loadGuestReg(JIT_SCRATCH3, d.Rs2)
	j.emitStrReg(JIT_SCRATCH3, JIT_SCRATCH1, width)
}

var jitBranchCond = map[uint32]int{
	0: COND_EQ, // BEQ
	1: COND_NE, // BNE
	4: COND_LT, // BLT
	5: COND_GE, // BGE
	6: COND_CC, // BLTU
	7: COND_CS, // BGEU
}

func (j *JITContext) translateBranch(d Decoded, pc uint64) {
	cond := jitBranchCond[d.Funct3]
	target := pc + uint64(int64(d.Imm))
	j.loadGuestReg(JIT_SCRATCH0, d.Rs1)
	j.loadGuestReg(JIT_SCRATCH1, d.Rs2)
	j.emitSubs(JIT_REG_XZR, JIT_SCRATCH0, JIT_SCRATCH1)

	if target%4 != 0 {
		// Taken path exits so the interpreter raises the fault;
		// fall-through continues in this block.
		takenBr := j.cursor
		j.emitBCond(cond^1, 0) // inverted: skip the exit when not taken
		j.emitExit(pc)
		j.patchBranch(takenBr, j.cursor)
		return
	}

	if off, cached := j.blockCache[target]; cached {
		j.emitBCond(cond, int32(off)-int32(j.cursor))
		return
	}

	// Unknown target: branch into a local exit stub and record the
	// branch site; translating the target later patches it direct.
	site := j.cursor
	j.emitBCond(cond, 8) // to the stub, over the fall-through jump
	j.addFixup(target, site)
	j.emitB(int32(4 + jitExitStubBytes)) // fall-through continues after the stub
	j.emitExit(target)
}

// emitJump ends a block with an unconditional transfer to target.
func (j *JITContext) emitJump(target uint64) {
	if off, cached := j.blockCache[target]; cached {
		j.emitB(int32(off) - int32(j.cursor))
		return
	}
	site := j.cursor
	j.emitB(4) // falls into the stub until patched
	j.addFixup(target, site)
	j.emitExit(target)
}

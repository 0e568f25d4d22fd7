// jit_arm64_enc.go - AArch64 instruction encoding for the template JIT

/*
jit_arm64_enc.go - Host instruction encoder

AArch64 is fixed-width 32-bit, little-endian. Every emit helper encodes
exactly one host instruction at the arena cursor and advances it by 4;
emitMovU64 is the one composite, a fixed MOVZ/MOVK chain of four. The
translator and the fixup patcher are the only callers.
*/

package main

import "encoding/binary"

// ------------------------------------------------------------------------------
// Pinned and Scratch Host Registers
// ------------------------------------------------------------------------------
// X25 and X26 are pinned for every translated block: guest-state base and
// guest-memory base. X30 carries the return address to the trampoline.
// X0-X3 are scratch; translated code clobbers nothing else.
const (
	JIT_REG_STATE = 25
	JIT_REG_MEM   = 26

	JIT_SCRATCH0 = 0
	JIT_SCRATCH1 = 1
	JIT_SCRATCH2 = 2
	JIT_SCRATCH3 = 3

	JIT_REG_XZR = 31
)

// ------------------------------------------------------------------------------
// Condition Codes (B.cond / CSINC)
// ------------------------------------------------------------------------------
const (
	COND_EQ = 0x0
	COND_NE = 0x1
	COND_CS = 0x2 // carry set / unsigned >=
	COND_CC = 0x3 // carry clear / unsigned <
	COND_HI = 0x8
	COND_LS = 0x9
	COND_GE = 0xA
	COND_LT = 0xB
	COND_GT = 0xC
	COND_LE = 0xD
)

// ------------------------------------------------------------------------------
// Branch Encoding Masks
// ------------------------------------------------------------------------------
const (
	ARM64_B_OPCODE     = 0x14000000
	ARM64_B_MASK       = 0xFC000000
	ARM64_BCOND_OPCODE = 0x54000000
	ARM64_BCOND_MASK   = 0xFF000010
)

func (j *JITContext) emit(inst uint32) {
	binary.LittleEndian.PutUint32(j.code[j.cursor:], inst)
	j.cursor += 4
}

// ------------------------------------------------------------------------------
// Immediate Loading
// ------------------------------------------------------------------------------

// emitMovZ emits MOVZ Xd, #imm16, LSL #shift (shift = 0, 16, 32, 48).
func (j *JITContext) emitMovZ(rd int, imm16 uint16, shift int) {
	j.emit(0xD2800000 | uint32(shift/16)<<21 | uint32(imm16)<<5 | uint32(rd&0x1F))
}

// emitMovK emits MOVK Xd, #imm16, LSL #shift.
func (j *JITContext) emitMovK(rd int, imm16 uint16, shift int) {
	j.emit(0xF2800000 | uint32(shift/16)<<21 | uint32(imm16)<<5 | uint32(rd&0x1F))
}

// emitMovU64 loads a full 64-bit value with a fixed four-instruction
// MOVZ/MOVK chain so emitted block sizes stay value-independent.
func (j *JITContext) emitMovU64(rd int, val uint64) {
	j.emitMovZ(rd, uint16(val), 0)
	j.emitMovK(rd, uint16(val>>16), 16)
	j.emitMovK(rd, uint16(val>>32), 32)
	j.emitMovK(rd, uint16(val>>48), 48)
}

// ------------------------------------------------------------------------------
// ALU
// ------------------------------------------------------------------------------

func (j *JITContext) emitAdd(rd, rn, rm int) {
	j.emit(0x8B000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

func (j *JITContext) emitAddImm(rd, rn int, imm12 uint32) {
	j.emit(0x91000000 | (imm12&0xFFF)<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

func (j *JITContext) emitSub(rd, rn, rm int) {
	j.emit(0xCB000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

// emitSubs sets NZCV; SUBS with rd=XZR is the compare.
func (j *JITContext) emitSubs(rd, rn, rm int) {
	j.emit(0xEB000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

func (j *JITContext) emitAnd(rd, rn, rm int) {
	j.emit(0x8A000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

func (j *JITContext) emitOrr(rd, rn, rm int) {
	j.emit(0xAA000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

func (j *JITContext) emitEor(rd, rn, rm int) {
	j.emit(0xCA000000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

// ------------------------------------------------------------------------------
// Shifts
// ------------------------------------------------------------------------------

// Variable shifts take the amount modulo 64 from a register, which is
// exactly the RV64 semantic for the low six bits.
func (j *JITContext) emitLslV(rd, rn, rm int) {
	j.emit(0x9AC02000 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

func (j *JITContext) emitLsrV(rd, rn, rm int) {
	j.emit(0x9AC02400 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

func (j *JITContext) emitAsrV(rd, rn, rm int) {
	j.emit(0x9AC02800 | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

// Immediate shifts are UBFM/SBFM aliases.
func (j *JITContext) emitLslI(rd, rn, shamt int) {
	immr := uint32(64-shamt) & 63
	imms := uint32(63 - shamt)
	j.emit(0xD3400000 | immr<<16 | imms<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

func (j *JITContext) emitLsrI(rd, rn, shamt int) {
	j.emit(0xD3400000 | uint32(shamt&63)<<16 | 63<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

func (j *JITContext) emitAsrI(rd, rn, shamt int) {
	j.emit(0x93400000 | uint32(shamt&63)<<16 | 63<<10 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F))
}

// emitCset materialises a comparison result: CSINC rd, XZR, XZR with the
// inverted condition.
func (j *JITContext) emitCset(rd, cond int) {
	j.emit(0x9A9F07E0 | uint32(cond^1)<<12 | uint32(rd&0x1F))
}

// ------------------------------------------------------------------------------
// Guest State Access (pinned X25 base, scaled unsigned offsets)
// ------------------------------------------------------------------------------

func (j *JITContext) emitLdrState(rt int, offset uint32) {
	j.emit(0xF9400000 | (offset/8)<<10 | JIT_REG_STATE<<5 | uint32(rt&0x1F))
}

func (j *JITContext) emitStrState(rt int, offset uint32) {
	j.emit(0xF9000000 | (offset/8)<<10 | JIT_REG_STATE<<5 | uint32(rt&0x1F))
}

// ------------------------------------------------------------------------------
// Guest Memory Access (pinned X26 base, register offset)
// ------------------------------------------------------------------------------

// emitLdrReg loads `width` bytes from [X26 + rm] into rt, sign- or
// zero-extending to 64 bits.
func (j *JITContext) emitLdrReg(rt, rm, width int, signed bool) {
	var base uint32
	switch width {
	case 1:
		base = 0x38606800 // LDRB
		if signed {
			base = 0x38A06800 // LDRSB Xt
		}
	case 2:
		base = 0x78606800 // LDRH
		if signed {
			base = 0x78A06800 // LDRSH Xt
		}
	case 4:
		base = 0xB8606800 // LDR Wt
		if signed {
			base = 0xB8A06800 // LDRSW Xt
		}
	default:
		base = 0xF8606800 // LDR Xt
	}
	j.emit(base | uint32(rm&0x1F)<<16 | JIT_REG_MEM<<5 | uint32(rt&0x1F))
}

// emitStrReg stores the low `width` bytes of rt to [X26 + rm].
func (j *JITContext) emitStrReg(rt, rm, width int) {
	var base uint32
	switch width {
	case 1:
		base = 0x38206800 // STRB
	case 2:
		base = 0x78206800 // STRH
	case 4:
		base = 0xB8206800 // STR Wt
	default:
		base = 0xF8206800 // STR Xt
	}
	j.emit(base | uint32(rm&0x1F)<<16 | JIT_REG_MEM<<5 | uint32(rt&0x1F))
}

// ------------------------------------------------------------------------------
// Branches
// ------------------------------------------------------------------------------

// emitB emits an unconditional branch with a byte displacement relative
// to the instruction itself.
func (j *JITContext) emitB(delta int32) {
	j.emit(ARM64_B_OPCODE | uint32(delta>>2)&0x03FFFFFF)
}

func (j *JITContext) emitBCond(cond int, delta int32) {
	j.emit(ARM64_BCOND_OPCODE | uint32(delta>>2)&0x7FFFF<<5 | uint32(cond&0xF))
}

func (j *JITContext) emitBr(rn int) {
	j.emit(0xD61F0000 | uint32(rn&0x1F)<<5)
}

func (j *JITContext) emitRet() {
	j.emit(0xD65F03C0)
}

// ------------------------------------------------------------------------------
// Branch Patching
// ------------------------------------------------------------------------------

// patchBranch rewrites the displacement of the B or B.cond instruction at
// `site` to reach `target` (both arena offsets). The stored opcode and
// condition bits are preserved.
func (j *JITContext) patchBranch(site, target uint32) {
	delta := int32(target) - int32(site)
	inst := binary.LittleEndian.Uint32(j.code[site:])
	switch {
	case inst&ARM64_B_MASK == ARM64_B_OPCODE:
		inst = ARM64_B_OPCODE | uint32(delta>>2)&0x03FFFFFF
	case inst&ARM64_BCOND_MASK == ARM64_BCOND_OPCODE:
		inst = ARM64_BCOND_OPCODE | uint32(delta>>2)&0x7FFFF<<5 | inst&0xF
	default:
		return // not a patchable branch; leave the arena untouched
	}
	binary.LittleEndian.PutUint32(j.code[site:], inst)
}

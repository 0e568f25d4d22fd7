// cpu_rv64_exec.go - RV64 interpreter dispatch

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
cpu_rv64_exec.go - Interpreter

One Step is a strict fetch-decode-execute-writeback cycle. Arithmetic is
64-bit two's-complement wrapping; shifts use the low six bits of the
amount; sub-word loads sign-extend (LB/LH/LW) or zero-extend (LBU/LHU/
LWU). Control transfers write PC directly; the PC advance policy compares
PC before and after execution and only advances by the instruction length
when the instruction did not transfer control itself. Unrecognised
primary opcodes are invalid-instruction faults, with no tolerance table
for non-standard toolchain encodings.
*/

package main

// Step executes one instruction in the interpreter. A nil return means
// the instruction retired; otherwise the returned fault has already been
// recorded and the VM is errored. Step is a no-op unless the VM runs.
func (vm *RV64) Step() error {
	if vm.state.Load() != VM_RUNNING {
		return nil
	}

	ins, length, fault := vm.fetch()
	if fault != nil {
		return fault
	}
	d, ok := decodeAny(ins, length)
	if !ok {
		return vm.raiseFault(FAULT_INVALID_INSTRUCTION, vm.pc)
	}

	pcBefore := vm.pc
	if err := vm.execute(d); err != nil {
		return err
	}
	if vm.pc == pcBefore {
		vm.pc += uint64(d.Len)
	}
	vm.perf.Instructions++
	return nil
}

// branchTarget validates a control-transfer destination: 4-byte aligned
// and translatable, else the matching fault.
func (vm *RV64) branchTarget(target uint64) *FaultError {
	if target%4 != 0 {
		return vm.raiseFault(FAULT_UNALIGNED_INSTRUCTION, target)
	}
	if _, ok := vm.translate(target, 4); !ok {
		return vm.raiseFault(FAULT_INVALID_MEMORY_ACCESS, target)
	}
	return nil
}

func (vm *RV64) execute(d Decoded) error {
	switch d.Opcode {

	case OPC_LUI:
		vm.setReg(d.Rd, uint64(int64(d.Imm)))

	case OPC_AUIPC:
		vm.setReg(d.Rd, vm.pc+uint64(int64(d.Imm)))

	case OPC_OP_IMM:
		// Shift encodings reserve the upper immediate bits.
		if d.Funct3 == 1 && d.Raw>>26 != 0 {
			return vm.raiseFault(FAULT_INVALID_INSTRUCTION, vm.pc)
		}
		if d.Funct3 == 5 && d.Raw>>26 != 0 && d.Raw>>26 != 0x10 {
			return vm.raiseFault(FAULT_INVALID_INSTRUCTION, vm.pc)
		}
		vm.setReg(d.Rd, aluImm(d, vm.getReg(d.Rs1)))

	case OPC_OP:
		val, ok := aluReg(d, vm.getReg(d.Rs1), vm.getReg(d.Rs2))
		if !ok {
			return vm.raiseFault(FAULT_INVALID_INSTRUCTION, vm.pc)
		}
		vm.setReg(d.Rd, val)

	case OPC_LOAD:
		return vm.execLoad(d)

	case OPC_STORE:
		return vm.execStore(d)

	case OPC_BRANCH:
		return vm.execBranch(d)

	case OPC_JAL:
		target := vm.pc + uint64(int64(d.Imm))
		if fault := vm.branchTarget(target); fault != nil {
			return fault
		}
		vm.setReg(d.Rd, vm.pc+uint64(d.Len))
		vm.pc = target

	case OPC_JALR:
		// Target drops bit 0 per the ISA, then the PC write truncates to
		// 4-byte alignment rather than faulting.
		target := (vm.getReg(d.Rs1) + uint64(int64(d.Imm))) &^ 1
		target &^= 3
		if _, ok := vm.translate(target, 4); !ok {
			return vm.raiseFault(FAULT_INVALID_MEMORY_ACCESS, target)
		}
		vm.setReg(d.Rd, vm.pc+uint64(d.Len))
		vm.pc = target

	case OPC_SYSTEM:
		if d.Funct3 == 0 && d.Imm == 0 && d.Rd == 0 && d.Rs1 == 0 {
			return vm.execEcall()
		}
		return vm.raiseFault(FAULT_INVALID_INSTRUCTION, vm.pc)

	default:
		return vm.raiseFault(FAULT_INVALID_INSTRUCTION, vm.pc)
	}
	return nil
}

// aluImm performs the OP-IMM group. Shift validity is checked by the
// caller; the arithmetic here is pure.
func aluImm(d Decoded, rs1 uint64) uint64 {
	imm := uint64(int64(d.Imm))
	switch d.Funct3 {
	case 0: // ADDI
		return rs1 + imm
	case 1: // SLLI
		return rs1 << (d.Raw >> 20 & 0x3F)
	case 2: // SLTI
		return btou64(int64(rs1) < int64(imm))
	case 3: // SLTIU
		return btou64(rs1 < imm)
	case 4: // XORI
		return rs1 ^ imm
	case 5: // SRLI / SRAI
		shamt := d.Raw >> 20 & 0x3F
		if d.Raw&0x40000000 != 0 {
			return uint64(int64(rs1) >> shamt)
		}
		return rs1 >> shamt
	case 6: // ORI
		return rs1 | imm
	case 7: // ANDI
		return rs1 & imm
	}
	return 0
}

// aluReg performs the OP group; ok=false flags an undefined funct7.
func aluReg(d Decoded, rs1, rs2 uint64) (uint64, bool) {
	switch d.Funct3 {
	case 0:
		switch d.Funct7 {
		case 0x00: // ADD
			return rs1 + rs2, true
		case 0x20: // SUB
			return rs1 - rs2, true
		}
	case 1:
		if d.Funct7 == 0 { // SLL
			return rs1 << (rs2 & 0x3F), true
		}
	case 2:
		if d.Funct7 == 0 { // SLT
			return btou64(int64(rs1) < int64(rs2)), true
		}
	case 3:
		if d.Funct7 == 0 { // SLTU
			return btou64(rs1 < rs2), true
		}
	case 4:
		if d.Funct7 == 0 { // XOR
			return rs1 ^ rs2, true
		}
	case 5:
		switch d.Funct7 {
		case 0x00: // SRL
			return rs1 >> (rs2 & 0x3F), true
		case 0x20: // SRA
			return uint64(int64(rs1) >> (rs2 & 0x3F)), true
		}
	case 6:
		if d.Funct7 == 0 { // OR
			return rs1 | rs2, true
		}
	case 7:
		if d.Funct7 == 0 { // AND
			return rs1 & rs2, true
		}
	}
	return 0, false
}

func (vm *RV64) execLoad(d Decoded) error {
	addr := vm.getReg(d.Rs1) + uint64(int64(d.Imm))
	var val uint64
	var fault *FaultError
	switch d.Funct3 {
	case 0: // LB
		val, fault = vm.Read8(addr)
		val = uint64(int64(int8(val)))
	case 1: // LH
		val, fault = vm.Read16(addr)
		val = uint64(int64(int16(val)))
	case 2: // LW
		val, fault = vm.Read32(addr)
		val = uint64(int64(int32(val)))
	case 3: // LD
		val, fault = vm.Read64(addr)
	case 4: // LBU
		val, fault = vm.Read8(addr)
	case 5: // LHU
		val, fault = vm.Read16(addr)
	case 6: // LWU
		val, fault = vm.Read32(addr)
	default:
		return vm.raiseFault(FAULT_INVALID_INSTRUCTION, vm.pc)
	}
	if fault != nil {
		return fault
	}
	vm.setReg(d.Rd, val)
	return nil
}

func (vm *RV64) execStore(d Decoded) error {
	addr := vm.getReg(d.Rs1) + uint64(int64(d.Imm))
	val := vm.getReg(d.Rs2)
	var fault *FaultError
	switch d.Funct3 {
	case 0: // SB
		fault = vm.Write8(addr, uint8(val))
	case 1: // SH
		fault = vm.Write16(addr, uint16(val))
	case 2: // SW
		fault = vm.Write32(addr, uint32(val))
	case 3: // SD
		fault = vm.Write64(addr, val)
	default:
		return vm.raiseFault(FAULT_INVALID_INSTRUCTION, vm.pc)
	}
	if fault != nil {
		return fault
	}
	return nil
}

func (vm *RV64) execBranch(d Decoded) error {
	rs1 := vm.getReg(d.Rs1)
	rs2 := vm.getReg(d.Rs2)
	var taken bool
	switch d.Funct3 {
	case 0: // BEQ
		taken = rs1 == rs2
	case 1: // BNE
		taken = rs1 != rs2
	case 4: // BLT
		taken = int64(rs1) < int64(rs2)
	case 5: // BGE
		taken = int64(rs1) >= int64(rs2)
	case 6: // BLTU
		taken = rs1 < rs2
	case 7: // BGEU
		taken = rs1 >= rs2
	default:
		return vm.raiseFault(FAULT_INVALID_INSTRUCTION, vm.pc)
	}
	if !taken {
		return nil
	}
	target := vm.pc + uint64(int64(d.Imm))
	if fault := vm.branchTarget(target); fault != nil {
		return fault
	}
	vm.pc = target
	return nil
}

func btou64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

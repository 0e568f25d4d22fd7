//go:build !arm64

// jit_enter_other.go - Trampoline stub for non-arm64 hosts

package main

import "unsafe"

// enterBlock is unreachable off arm64: EnableJIT refuses to build a
// context there, so StepJIT always degrades to the interpreter first.
func enterBlock(code uintptr, state unsafe.Pointer, mem unsafe.Pointer) {
	panic("JIT: block entry on non-arm64 host")
}

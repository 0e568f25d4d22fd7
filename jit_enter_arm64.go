//go:build arm64

// jit_enter_arm64.go - Trampoline into translated code

package main

import "unsafe"

// enterBlock loads the pinned registers (X25 guest state, X26 guest
// memory) and branch-and-links to the block's host pointer. Translated
// code returns through X30 when the block terminates.
//
//go:noescape
func enterBlock(code uintptr, state unsafe.Pointer, mem unsafe.Pointer)

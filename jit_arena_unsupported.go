//go:build !(linux || (darwin && arm64))

// jit_arena_unsupported.go - Arena stubs for hosts without a JIT target

package main

import "fmt"

func arenaMap(size int) ([]byte, error) {
	return nil, fmt.Errorf("JIT: no executable arena support on this platform")
}

func arenaUnmap(code []byte) {}
func arenaWriteEnable()      {}
func arenaWriteDisable()     {}

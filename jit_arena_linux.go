//go:build linux

// jit_arena_linux.go - Executable arena mapping, Linux

package main

import "golang.org/x/sys/unix"

// arenaMap reserves the RWX code arena. Linux has no per-thread JIT
// write-protect switch, so the enable/disable hooks are empty and W^X
// discipline is the translator's write-then-flush protocol alone.
func arenaMap(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
}

func arenaUnmap(code []byte) {
	_ = unix.Munmap(code)
}

func arenaWriteEnable()  {}
func arenaWriteDisable() {}

//go:build darwin && arm64

// jit_arena_darwin.go - Executable arena mapping, Apple Silicon

/*
Apple Silicon enforces W^X on MAP_JIT pages through a per-thread
write-protect switch. The translator flips it off around emission and
back on before the arena is executed, which means translation and block
entry must stay on one OS thread; the single-threaded VM contract
already guarantees that as long as the driver locks its goroutine.
*/

package main

import (
	"sync"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

var (
	jitWPOnce         sync.Once
	jitWriteProtectNP func(int32)
)

func jitWPInit() {
	lib, err := purego.Dlopen("/usr/lib/libSystem.B.dylib", purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return
	}
	purego.RegisterLibFunc(&jitWriteProtectNP, lib, "pthread_jit_write_protect_np")
}

func arenaMap(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_JIT)
}

func arenaUnmap(code []byte) {
	_ = unix.Munmap(code)
}

func arenaWriteEnable() {
	jitWPOnce.Do(jitWPInit)
	if jitWriteProtectNP != nil {
		jitWriteProtectNP(0)
	}
}

func arenaWriteDisable() {
	if jitWriteProtectNP != nil {
		jitWriteProtectNP(1)
	}
}

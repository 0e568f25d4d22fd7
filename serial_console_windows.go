//go:build windows

// serial_console_windows.go - Serial console without raw-mode stdin

package main

import "os"

// SerialConsole on Windows writes guest output to stdout and takes no
// keyboard input; window input still reaches the VM through the video
// backend.
type SerialConsole struct {
	vm *RV64
}

func NewSerialConsole(vm *RV64) *SerialConsole {
	return &SerialConsole{vm: vm}
}

func (c *SerialConsole) WriteByte(b byte) {
	os.Stdout.Write([]byte{b})
}

func (c *SerialConsole) Start() {}
func (c *SerialConsole) Stop()  {}

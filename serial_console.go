//go:build !windows

// serial_console.go - Raw-mode terminal host for the guest serial channel

/*
serial_console.go - Serial console host

Bridges the guest's SBI putchar stream to stdout and raw stdin bytes
back into the VM input queue as keyboard events. The terminal is put in
raw mode so the guest sees every keystroke without OS echo or line
buffering; Stop restores the saved state. Raw mode sends CR for Enter
and DEL for Backspace, both translated to the guest's conventions.
*/

package main

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

type SerialConsole struct {
	vm           *RV64
	stopCh       chan struct{}
	done         chan struct{}
	fd           int
	nonblockSet  bool
	oldTermState *term.State
}

func NewSerialConsole(vm *RV64) *SerialConsole {
	return &SerialConsole{
		vm:     vm,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// WriteByte is the SerialSink for SBI putchar. Raw mode needs CRLF.
func (c *SerialConsole) WriteByte(b byte) {
	if b == '\n' {
		os.Stdout.Write([]byte{'\r', '\n'})
		return
	}
	os.Stdout.Write([]byte{b})
}

// Start sets stdin to raw non-blocking mode and begins reading in a
// goroutine; each byte becomes a keyboard press event.
func (c *SerialConsole) Start() {
	c.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(c.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serial_console: failed to set raw mode: %v\n", err)
		close(c.done)
		return
	}
	c.oldTermState = oldState

	if err := syscall.SetNonblock(c.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "serial_console: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(c.fd, c.oldTermState)
		c.oldTermState = nil
		close(c.done)
		return
	}
	c.nonblockSet = true

	go func() {
		defer close(c.done)
		buf := make([]byte, 1)
		for {
			select {
			case <-c.stopCh:
				return
			default:
			}
			n, _ := syscall.Read(c.fd, buf)
			if n > 0 {
				b := buf[0]
				// Raw mode sends CR for Enter; the guest expects LF.
				if b == '\r' {
					b = '\n'
				}
				// Modern terminals send 0x7F (DEL) for Backspace.
				if b == 0x7F {
					b = 0x08
				}
				if b == 0x03 { // Ctrl+C stops the VM
					c.vm.Stop()
					continue
				}
				c.vm.InjectKeyboardEvent(INPUT_KIND_PRESS, uint32(b), uint32(b), 0)
			}
		}
	}()
}

// Stop restores the terminal and joins the reader.
func (c *SerialConsole) Stop() {
	close(c.stopCh)
	<-c.done
	if c.nonblockSet {
		_ = syscall.SetNonblock(c.fd, false)
		c.nonblockSet = false
	}
	if c.oldTermState != nil {
		_ = term.Restore(c.fd, c.oldTermState)
		c.oldTermState = nil
	}
}

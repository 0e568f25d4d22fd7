// machine.go - Host machine wiring: VM, compositor, console, host kernel

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
License: GPLv3 or later
*/

/*
machine.go - Machine frontend

Wires one RV64 VM to a video backend, the serial console and the sample
host kernel callback, then runs the execute loop on its own goroutine
with a frame pump copying the framebuffer view to the compositor at
vsync cadence whenever the dirty region is non-empty. Input events from
the backend land in the VM queue through InjectMouseEvent /
InjectKeyboardEvent; those calls are queue-internal-locked, so the
render thread may produce while the VM thread consumes.
*/

package main

import (
	"fmt"
	"os"
	"runtime"
	"time"
)

type MachineConfig struct {
	MemorySize int
	UseJIT     bool
	Headless   bool
	Scale      int
	Interactive bool // raw-mode serial console on stdin/stdout
}

type Machine struct {
	vm      *RV64
	video   VideoOutput
	console *SerialConsole
	cfg     MachineConfig

	ticksBase time.Time
}

func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.MemorySize == 0 {
		if cfg.UseJIT {
			cfg.MemorySize = RV64_JIT_MEMORY_SIZE
		} else {
			cfg.MemorySize = RV64_MEMORY_SIZE
		}
	}
	m := &Machine{
		vm:  NewRV64(RV64Config{MemorySize: cfg.MemorySize}),
		cfg: cfg,
	}

	backend := VIDEO_BACKEND_EBITEN
	if cfg.Headless {
		backend = VIDEO_BACKEND_HEADLESS
	}
	video, err := NewVideoOutput(backend)
	if err != nil {
		return nil, fmt.Errorf("machine: %w", err)
	}
	m.video = video
	video.SetDisplayConfig(DisplayConfig{
		Width: FB_WIDTH, Height: FB_HEIGHT,
		Scale: ClampScale(cfg.Scale), Title: "Intuition RV64",
	})
	if in, ok := video.(InputCapable); ok {
		in.SetInputHandler(func(ev InputEvent) {
			if ev.Device == INPUT_DEVICE_MOUSE {
				m.vm.InjectMouseEvent(ev.Kind, ev.Code, ev.X, ev.Y, ev.Mods)
			} else {
				m.vm.InjectKeyboardEvent(ev.Kind, ev.Code, ev.Char, ev.Mods)
			}
		})
	}
	if cn, ok := video.(CloseNotifier); ok {
		cn.SetCloseHandler(m.vm.Stop)
	}

	if cfg.Interactive {
		m.console = NewSerialConsole(m.vm)
		m.vm.SetSerialOutput(m.console.WriteByte)
	} else {
		m.vm.SetSerialOutput(func(b byte) { os.Stdout.Write([]byte{b}) })
	}

	m.ticksBase = time.Now()
	m.vm.SetSyscallHandler(hostKernelHandler, m)

	if cfg.UseJIT {
		if err := m.vm.EnableJIT(); err != nil {
			fmt.Fprintf(os.Stderr, "machine: JIT unavailable, interpreting: %v\n", err)
		}
	}
	return m, nil
}

func (m *Machine) VM() *RV64 { return m.vm }

// LoadImageFile reads a raw guest image and programs the entry PC.
func (m *Machine) LoadImageFile(path string, loadAddr, entry uint64) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("machine: reading image: %w", err)
	}
	return m.vm.LoadImage(image, loadAddr, entry)
}

// Run executes the guest until it halts, errors or is stopped, pumping
// frames to the compositor from this goroutine while the VM runs on its
// own. Returns the VM's final state.
func (m *Machine) Run() int {
	if err := m.video.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "machine: video start: %v\n", err)
	}
	if m.console != nil {
		m.console.Start()
		defer m.console.Stop()
	}

	m.vm.Start()
	done := make(chan struct{})
	go func() {
		defer close(done)
		// The darwin JIT write-protect switch is per-thread; the whole
		// VM contract is one-thread anyway, so pin it.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		for m.vm.Running() {
			var err error
			if m.vm.JITEnabled() {
				err = m.vm.StepJIT()
			} else {
				err = m.vm.Step()
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "RV64: %v\n", err)
				return
			}
		}
	}()

	frame := time.NewTicker(time.Second / time.Duration(m.video.GetRefreshRate()))
	defer frame.Stop()
	for {
		select {
		case <-done:
			m.pumpFrame()
			m.video.Stop()
			return m.vm.State()
		case <-frame.C:
			m.pumpFrame()
		}
	}
}

// pumpFrame copies the framebuffer view out when anything changed.
// The copy races guest stores by at most one frame, which is the same
// contract real scanout hardware gives.
func (m *Machine) pumpFrame() {
	if m.vm.DirtyRegion().Empty() {
		return
	}
	m.vm.ClearDirtyRegion()
	m.video.UpdateFrame(m.vm.FramebufferMemory())
}

// PrintStats dumps the statistics tap.
func (m *Machine) PrintStats() {
	perf := m.vm.Perf()
	fmt.Printf("RV64: %d instructions, %d syscalls\n", perf.Instructions, perf.Syscalls)
	if m.vm.JITEnabled() {
		fmt.Printf("JIT:  %d blocks translated, %d entered, %d cache hits, %d fallbacks\n",
			perf.BlocksTranslated, perf.BlocksEntered, perf.CacheHits, perf.InterpFallbacks)
		for _, e := range m.vm.HotPaths() {
			if e.Count > 1 {
				fmt.Printf("JIT:  hot 0x%X x%d\n", e.PC, e.Count)
			}
		}
	}
	for kind, n := range m.vm.FaultCounts() {
		fmt.Printf("RV64: %d x %s\n", n, kind)
	}
}

// ------------------------------------------------------------------------------
// Sample Host Kernel Callback
// ------------------------------------------------------------------------------

// Host kernel syscall numbers serviced by the sample callback.
const (
	HSYS_WRITE_CHAR = 11
	HSYS_GET_TICKS  = 20
)

// hostKernelHandler is the sample host kernel: exit, serial write and a
// millisecond tick counter. user carries the owning Machine, passed
// through SetSyscallHandler rather than any process-wide state.
func hostKernelHandler(user any, num, a1, a2, a3, a4 uint64) uint64 {
	m, ok := user.(*Machine)
	if !ok {
		return KERR_INVALID
	}
	switch num {
	case SYS_EXIT:
		return a1 // exit code, visible in a0 after the halt
	case HSYS_WRITE_CHAR:
		if m.console != nil {
			m.console.WriteByte(byte(a1))
		} else {
			os.Stdout.Write([]byte{byte(a1)})
		}
		return 0
	case HSYS_GET_TICKS:
		return uint64(time.Since(m.ticksBase) / time.Millisecond)
	}
	return KERR_NOT_FOUND
}

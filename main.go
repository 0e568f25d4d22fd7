// main.go - Entry point for the Intuition RV64 machine

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

package main

import (
	"flag"
	"fmt"
	"os"
)

func boilerPlate() {
	fmt.Println("\nIntuition RV64 - a RISC-V64 user/supervisor machine with an AArch64 template JIT.")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/IntuitionRV")
	fmt.Println("License: GPLv3 or later")
	fmt.Println()
}

func main() {
	var (
		memSize     = flag.Int("mem", 0, "guest memory size in bytes (default 8MB, 4MB with -jit)")
		useJIT      = flag.Bool("jit", false, "translate guest blocks to AArch64")
		headless    = flag.Bool("headless", false, "run without a window")
		interactive = flag.Bool("console", false, "raw-mode serial console on stdin/stdout")
		scale       = flag.Int("scale", 1, "window scale factor (1-4)")
		loadAddr    = flag.Uint64("load", KERNEL_BASE, "guest load address")
		entry       = flag.Uint64("entry", 0, "entry PC (default: load address)")
		monitor     = flag.String("monitor", "", "run a Lua monitor script instead of the machine loop")
		stats       = flag.Bool("stats", false, "print execution statistics on exit")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: intuition_rv [flags] image.bin")
		flag.PrintDefaults()
		os.Exit(1)
	}

	boilerPlate()

	machine, err := NewMachine(MachineConfig{
		MemorySize:  *memSize,
		UseJIT:      *useJIT,
		Headless:    *headless,
		Interactive: *interactive,
		Scale:       *scale,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "intuition_rv: %v\n", err)
		os.Exit(1)
	}

	e := *entry
	if e == 0 {
		e = *loadAddr
	}
	if err := machine.LoadImageFile(flag.Arg(0), *loadAddr, e); err != nil {
		fmt.Fprintf(os.Stderr, "intuition_rv: %v\n", err)
		os.Exit(1)
	}

	if *monitor != "" {
		machine.VM().Start()
		if err := NewDebugMonitor(machine.VM()).RunFile(*monitor); err != nil {
			fmt.Fprintf(os.Stderr, "intuition_rv: %v\n", err)
			os.Exit(1)
		}
		if *stats {
			machine.PrintStats()
		}
		return
	}

	state := machine.Run()
	if *stats {
		machine.PrintStats()
	}
	if state == VM_ERRORED {
		fmt.Fprintf(os.Stderr, "intuition_rv: guest faulted: %s\n", machine.VM().LastError())
		os.Exit(1)
	}
}

// debug_monitor_lua.go - Lua-scriptable debug monitor over the VM taps

/*
debug_monitor_lua.go - Debug monitor

Exposes the VM to Lua scripts for inspection and light poking: register
and PC accessors, memory peek/poke at any width, single-stepping and a
bounded run loop, plus the read-only statistics tap. Scripts drive it
from the VM thread between steps, the same contract as every other VM
operation. Values cross the boundary as Lua numbers, which carry 53
bits; addresses in the three guest windows all fit.
*/

package main

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

type DebugMonitor struct {
	vm *RV64
}

func NewDebugMonitor(vm *RV64) *DebugMonitor {
	return &DebugMonitor{vm: vm}
}

// RunScript executes a monitor script in a fresh Lua state.
func (m *DebugMonitor) RunScript(src string) error {
	L := lua.NewState()
	defer L.Close()
	m.register(L)
	if err := L.DoString(src); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

// RunFile executes a monitor script from disk.
func (m *DebugMonitor) RunFile(path string) error {
	L := lua.NewState()
	defer L.Close()
	m.register(L)
	if err := L.DoFile(path); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

func (m *DebugMonitor) register(L *lua.LState) {
	vm := m.vm

	L.SetGlobal("reg", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(vm.Reg(int(L.CheckInt(1)))))
		return 1
	}))
	L.SetGlobal("setreg", L.NewFunction(func(L *lua.LState) int {
		vm.SetReg(int(L.CheckInt(1)), uint64(L.CheckNumber(2)))
		return 0
	}))
	L.SetGlobal("pc", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(vm.PC()))
		return 1
	}))
	L.SetGlobal("setpc", L.NewFunction(func(L *lua.LState) int {
		vm.SetPC(uint64(L.CheckNumber(1)))
		return 0
	}))

	L.SetGlobal("peek", L.NewFunction(func(L *lua.LState) int {
		addr := uint64(L.CheckNumber(1))
		width := L.OptInt(2, 4)
		var val uint64
		var fault *FaultError
		switch width {
		case 1:
			val, fault = vm.Read8(addr)
		case 2:
			val, fault = vm.Read16(addr)
		case 8:
			val, fault = vm.Read64(addr)
		default:
			val, fault = vm.Read32(addr)
		}
		if fault != nil {
			L.RaiseError("peek 0x%X: %s", addr, fault.Kind)
		}
		L.Push(lua.LNumber(val))
		return 1
	}))
	L.SetGlobal("poke", L.NewFunction(func(L *lua.LState) int {
		addr := uint64(L.CheckNumber(1))
		val := uint64(L.CheckNumber(2))
		width := L.OptInt(3, 4)
		var fault *FaultError
		switch width {
		case 1:
			fault = vm.Write8(addr, uint8(val))
		case 2:
			fault = vm.Write16(addr, uint16(val))
		case 8:
			fault = vm.Write64(addr, val)
		default:
			fault = vm.Write32(addr, uint32(val))
		}
		if fault != nil {
			L.RaiseError("poke 0x%X: %s", addr, fault.Kind)
		}
		return 0
	}))

	L.SetGlobal("step", L.NewFunction(func(L *lua.LState) int {
		n := L.OptInt(1, 1)
		executed := 0
		for i := 0; i < n && vm.Running(); i++ {
			if vm.Step() != nil {
				break
			}
			executed++
		}
		L.Push(lua.LNumber(executed))
		return 1
	}))
	L.SetGlobal("run", L.NewFunction(func(L *lua.LState) int {
		max := L.OptInt(1, 1000000)
		executed := 0
		for i := 0; i < max && vm.Running(); i++ {
			if vm.Step() != nil {
				break
			}
			executed++
		}
		L.Push(lua.LNumber(executed))
		return 1
	}))

	L.SetGlobal("stats", L.NewFunction(func(L *lua.LState) int {
		perf := vm.Perf()
		t := L.NewTable()
		t.RawSetString("instructions", lua.LNumber(perf.Instructions))
		t.RawSetString("blocks_translated", lua.LNumber(perf.BlocksTranslated))
		t.RawSetString("blocks_entered", lua.LNumber(perf.BlocksEntered))
		t.RawSetString("cache_hits", lua.LNumber(perf.CacheHits))
		t.RawSetString("interp_fallbacks", lua.LNumber(perf.InterpFallbacks))
		t.RawSetString("syscalls", lua.LNumber(perf.Syscalls))
		t.RawSetString("state", lua.LNumber(vm.State()))
		t.RawSetString("last_error", lua.LString(vm.LastError().String()))
		L.Push(t)
		return 1
	}))

	L.SetGlobal("hotpaths", L.NewFunction(func(L *lua.LState) int {
		t := L.NewTable()
		for _, e := range vm.HotPaths() {
			row := L.NewTable()
			row.RawSetString("pc", lua.LNumber(e.PC))
			row.RawSetString("count", lua.LNumber(e.Count))
			row.RawSetString("last_seen", lua.LNumber(e.LastSeen))
			t.Append(row)
		}
		L.Push(t)
		return 1
	}))
}

//go:build !headless

// video_backend_ebiten.go - Ebiten window surface and input producer

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

package main

import (
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"golang.design/x/clipboard"
)

type EbitenOutput struct {
	running     bool
	width       int
	height      int
	scale       int
	title       string
	frameBuffer []byte
	frameImage  *ebiten.Image
	bufferMutex sync.RWMutex
	frameCount  uint64
	vsyncChan   chan struct{}

	inputHandler func(InputEvent)
	closeHandler func()
	lastMouseX   int
	lastMouseY   int

	clipboardOnce sync.Once
	clipboardOK   bool
}

func NewEbitenOutput() (VideoOutput, error) {
	return &EbitenOutput{
		width:       FB_WIDTH,
		height:      FB_HEIGHT,
		scale:       1,
		title:       "Intuition RV64",
		frameBuffer: make([]byte, FB_WIDTH*FB_HEIGHT*FB_BYTES_PER_PIXEL),
		vsyncChan:   make(chan struct{}, 1),
	}, nil
}

func (eo *EbitenOutput) Start() error {
	if eo.running {
		return nil
	}
	eo.running = true
	ebiten.SetWindowSize(eo.width*eo.scale, eo.height*eo.scale)
	ebiten.SetWindowTitle(eo.title)
	ebiten.SetWindowResizable(true)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetVsyncEnabled(true)

	go func() {
		if err := ebiten.RunGame(eo); err != nil {
			fmt.Printf("Ebiten error: %v\n", err)
		}
	}()

	// Wait for first Draw call to ensure Ebiten is ready
	<-eo.vsyncChan
	return nil
}

func (eo *EbitenOutput) Stop() error {
	eo.running = false
	return nil
}

func (eo *EbitenOutput) Close() error {
	return eo.Stop()
}

func (eo *EbitenOutput) IsStarted() bool {
	return eo.running
}

func (eo *EbitenOutput) SetDisplayConfig(config DisplayConfig) error {
	if config.Width != FB_WIDTH || config.Height != FB_HEIGHT {
		return &VideoError{Backend: "ebiten", Op: "configure",
			Err: fmt.Errorf("surface is fixed at %dx%d", FB_WIDTH, FB_HEIGHT)}
	}
	eo.scale = ClampScale(config.Scale)
	if config.Title != "" {
		eo.title = config.Title
	}
	return nil
}

func (eo *EbitenOutput) GetDisplayConfig() DisplayConfig {
	return DisplayConfig{Width: eo.width, Height: eo.height, Scale: eo.scale, Title: eo.title}
}

func (eo *EbitenOutput) UpdateFrame(buffer []byte) error {
	if len(buffer) != len(eo.frameBuffer) {
		return &VideoError{Backend: "ebiten", Op: "frame",
			Err: fmt.Errorf("buffer is %d bytes, want %d", len(buffer), len(eo.frameBuffer))}
	}
	eo.bufferMutex.Lock()
	copy(eo.frameBuffer, buffer)
	eo.bufferMutex.Unlock()
	return nil
}

func (eo *EbitenOutput) GetFrameCount() uint64 {
	return eo.frameCount
}

func (eo *EbitenOutput) GetRefreshRate() int {
	return 60
}

func (eo *EbitenOutput) SetInputHandler(fn func(InputEvent)) {
	eo.bufferMutex.Lock()
	eo.inputHandler = fn
	eo.bufferMutex.Unlock()
}

func (eo *EbitenOutput) SetCloseHandler(fn func()) {
	eo.closeHandler = fn
}

func (eo *EbitenOutput) emit(ev InputEvent) {
	eo.bufferMutex.RLock()
	handler := eo.inputHandler
	eo.bufferMutex.RUnlock()
	if handler != nil {
		handler(ev)
	}
}

// ------------------------------------------------------------------------------
// ebiten.Game
// ------------------------------------------------------------------------------

func (eo *EbitenOutput) Update() error {
	if ebiten.IsWindowBeingClosed() || !eo.running {
		if eo.closeHandler != nil {
			eo.closeHandler()
		}
		return ebiten.Termination
	}
	eo.pollKeyboard()
	eo.pollMouse()
	return nil
}

func (eo *EbitenOutput) Draw(screen *ebiten.Image) {
	eo.bufferMutex.RLock()
	if eo.frameImage == nil {
		eo.frameImage = ebiten.NewImage(eo.width, eo.height)
	}
	eo.frameImage.WritePixels(eo.frameBuffer)
	eo.bufferMutex.RUnlock()

	screen.DrawImage(eo.frameImage, nil)
	eo.frameCount++

	select {
	case eo.vsyncChan <- struct{}{}:
	default:
	}
}

func (eo *EbitenOutput) Layout(outsideWidth, outsideHeight int) (int, int) {
	return eo.width, eo.height
}

// ------------------------------------------------------------------------------
// Input Capture
// ------------------------------------------------------------------------------

func modsFromKeys() uint32 {
	var mods uint32
	if ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		mods |= INPUT_MOD_SHIFT
	}
	if ebiten.IsKeyPressed(ebiten.KeyControlLeft) || ebiten.IsKeyPressed(ebiten.KeyControlRight) {
		mods |= INPUT_MOD_CTRL
	}
	if ebiten.IsKeyPressed(ebiten.KeyAltLeft) || ebiten.IsKeyPressed(ebiten.KeyAltRight) {
		mods |= INPUT_MOD_ALT
	}
	return mods
}

func (eo *EbitenOutput) pollKeyboard() {
	mods := modsFromKeys()

	// Clipboard paste: Ctrl+Shift+V
	if mods&INPUT_MOD_CTRL != 0 && mods&INPUT_MOD_SHIFT != 0 &&
		inpututil.IsKeyJustPressed(ebiten.KeyV) {
		eo.handleClipboardPaste(mods)
		return
	}

	// Printable input path.
	for _, r := range ebiten.AppendInputChars(nil) {
		if r > 0 && r <= 0x10FFFF {
			eo.emit(InputEvent{
				Device: INPUT_DEVICE_KEYBOARD,
				Kind:   INPUT_KIND_PRESS,
				Char:   uint32(r),
				Mods:   mods,
			})
		}
	}

	for _, key := range inpututil.AppendJustPressedKeys(nil) {
		eo.emit(InputEvent{
			Device: INPUT_DEVICE_KEYBOARD,
			Kind:   INPUT_KIND_PRESS,
			Code:   uint32(key),
			Mods:   mods,
		})
	}
	for _, key := range inpututil.AppendJustReleasedKeys(nil) {
		eo.emit(InputEvent{
			Device: INPUT_DEVICE_KEYBOARD,
			Kind:   INPUT_KIND_RELEASE,
			Code:   uint32(key),
			Mods:   mods,
		})
	}
}

var ebitenMouseButtons = []ebiten.MouseButton{
	ebiten.MouseButtonLeft,
	ebiten.MouseButtonRight,
	ebiten.MouseButtonMiddle,
}

func (eo *EbitenOutput) pollMouse() {
	mods := modsFromKeys()
	x, y := ebiten.CursorPosition()
	if x != eo.lastMouseX || y != eo.lastMouseY {
		eo.lastMouseX, eo.lastMouseY = x, y
		eo.emit(InputEvent{
			Device: INPUT_DEVICE_MOUSE,
			Kind:   INPUT_KIND_MOVE,
			X:      int32(x),
			Y:      int32(y),
			Mods:   mods,
		})
	}
	for i, btn := range ebitenMouseButtons {
		if inpututil.IsMouseButtonJustPressed(btn) {
			eo.emit(InputEvent{
				Device: INPUT_DEVICE_MOUSE,
				Kind:   INPUT_KIND_PRESS,
				Code:   uint32(i),
				X:      int32(x),
				Y:      int32(y),
				Mods:   mods,
			})
		}
		if inpututil.IsMouseButtonJustReleased(btn) {
			eo.emit(InputEvent{
				Device: INPUT_DEVICE_MOUSE,
				Kind:   INPUT_KIND_RELEASE,
				Code:   uint32(i),
				X:      int32(x),
				Y:      int32(y),
				Mods:   mods,
			})
		}
	}
}

// handleClipboardPaste replays clipboard text as keyboard press events.
func (eo *EbitenOutput) handleClipboardPaste(mods uint32) {
	eo.clipboardOnce.Do(func() {
		eo.clipboardOK = clipboard.Init() == nil
	})
	if !eo.clipboardOK {
		return
	}
	for _, r := range string(clipboard.Read(clipboard.FmtText)) {
		if r == '\r' {
			r = '\n'
		}
		eo.emit(InputEvent{
			Device: INPUT_DEVICE_KEYBOARD,
			Kind:   INPUT_KIND_PRESS,
			Char:   uint32(r),
			Mods:   mods &^ (INPUT_MOD_CTRL | INPUT_MOD_SHIFT),
		})
	}
}

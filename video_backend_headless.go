// video_backend_headless.go - Frame sink for tests and batch runs

package main

import "sync/atomic"

type HeadlessVideoOutput struct {
	started    bool
	config     DisplayConfig
	frameCount uint64
	lastFrame  []byte
	handler    func(InputEvent)
}

func NewHeadlessVideoOutput() *HeadlessVideoOutput {
	return &HeadlessVideoOutput{
		config: DisplayConfig{Width: FB_WIDTH, Height: FB_HEIGHT, Scale: 1},
	}
}

func (h *HeadlessVideoOutput) Start() error {
	h.started = true
	return nil
}

func (h *HeadlessVideoOutput) Stop() error {
	h.started = false
	return nil
}

func (h *HeadlessVideoOutput) Close() error {
	h.started = false
	return nil
}

func (h *HeadlessVideoOutput) IsStarted() bool {
	return h.started
}

func (h *HeadlessVideoOutput) SetDisplayConfig(config DisplayConfig) error {
	h.config = config
	return nil
}

func (h *HeadlessVideoOutput) GetDisplayConfig() DisplayConfig {
	return h.config
}

func (h *HeadlessVideoOutput) UpdateFrame(buffer []byte) error {
	if h.lastFrame == nil {
		h.lastFrame = make([]byte, len(buffer))
	}
	copy(h.lastFrame, buffer)
	atomic.AddUint64(&h.frameCount, 1)
	return nil
}

func (h *HeadlessVideoOutput) GetFrameCount() uint64 {
	return atomic.LoadUint64(&h.frameCount)
}

func (h *HeadlessVideoOutput) GetRefreshRate() int {
	return 60
}

func (h *HeadlessVideoOutput) SetInputHandler(fn func(InputEvent)) {
	h.handler = fn
}

// InjectEvent feeds a synthetic event through the registered handler;
// tests drive the input path with it.
func (h *HeadlessVideoOutput) InjectEvent(ev InputEvent) {
	if h.handler != nil {
		h.handler(ev)
	}
}

//go:build headless

// video_backend_ebiten_stub.go - Ebiten backend stub for headless builds

package main

import "fmt"

func NewEbitenOutput() (VideoOutput, error) {
	return nil, fmt.Errorf("video(ebiten): not available in headless build")
}

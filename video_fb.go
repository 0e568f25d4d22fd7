// video_fb.go - Guest framebuffer drawing and dirty-region tracking

/*
video_fb.go - Framebuffer device

The framebuffer is the top fbSize bytes of guest memory, a fixed
1024x768 surface of RGBA bytes (R first). The guest draws through the
fb_clear / fb_draw_pixel / fb_draw_text syscalls, which need direct
buffer access and therefore live in the engine; everything a pixel
touches widens the dirty rectangle the compositor consumes at vsync.
Colours arrive packed (R<<24)|(G<<16)|(B<<8)|A.
*/

package main

// DirtyRect is the bounding rectangle of framebuffer pixels modified
// since the last sync. Zero value is empty.
type DirtyRect struct {
	MinX, MinY int
	MaxX, MaxY int // exclusive
	valid      bool
}

func (r *DirtyRect) Empty() bool { return !r.valid }

func (r *DirtyRect) Reset() { *r = DirtyRect{} }

// Add widens the rectangle to include the pixel at (x, y).
func (r *DirtyRect) Add(x, y int) {
	if !r.valid {
		r.MinX, r.MinY, r.MaxX, r.MaxY = x, y, x+1, y+1
		r.valid = true
		return
	}
	if x < r.MinX {
		r.MinX = x
	}
	if y < r.MinY {
		r.MinY = y
	}
	if x+1 > r.MaxX {
		r.MaxX = x + 1
	}
	if y+1 > r.MaxY {
		r.MaxY = y + 1
	}
}

// AddRect widens the rectangle to include [x0,x1)x[y0,y1).
func (r *DirtyRect) AddRect(x0, y0, x1, y1 int) {
	if x1 <= x0 || y1 <= y0 {
		return
	}
	r.Add(x0, y0)
	r.Add(x1-1, y1-1)
}

// DirtyRegion returns the current rectangle; ClearDirtyRegion resets it
// after a sync. Both are VM-thread operations.
func (vm *RV64) DirtyRegion() DirtyRect { return vm.fbDirty }
func (vm *RV64) ClearDirtyRegion()      { vm.fbDirty.Reset() }

// ------------------------------------------------------------------------------
// Drawing Primitives
// ------------------------------------------------------------------------------

func unpackRGBA(packed uint32) (r, g, b, a byte) {
	return byte(packed >> 24), byte(packed >> 16), byte(packed >> 8), byte(packed)
}

// fbClear fills the whole surface with one colour.
func (vm *RV64) fbClear(packed uint32) {
	fb := vm.FramebufferMemory()
	r, g, b, a := unpackRGBA(packed)
	for i := 0; i < len(fb); i += FB_BYTES_PER_PIXEL {
		fb[i] = r
		fb[i+1] = g
		fb[i+2] = b
		fb[i+3] = a
	}
	vm.fbDirty.AddRect(0, 0, FB_WIDTH, FB_HEIGHT)
}

// fbDrawPixel plots one pixel; ok=false when out of bounds.
func (vm *RV64) fbDrawPixel(x, y int, packed uint32) bool {
	if x < 0 || y < 0 || x >= FB_WIDTH || y >= FB_HEIGHT {
		return false
	}
	fb := vm.FramebufferMemory()
	off := (y*FB_WIDTH + x) * FB_BYTES_PER_PIXEL
	fb[off], fb[off+1], fb[off+2], fb[off+3] = unpackRGBA(packed)
	vm.fbDirty.Add(x, y)
	return true
}

// fbDrawText renders text with the built-in 8x8 bitmap font, foreground
// over an opaque black background cell. Glyphs that would leave the
// surface are skipped; the return value is the count actually drawn.
func (vm *RV64) fbDrawText(x, y int, text []byte, fg uint32) int {
	fb := vm.FramebufferMemory()
	fr, fgc, fbl, fa := unpackRGBA(fg)
	drawn := 0
	for _, ch := range text {
		if x+FONT_WIDTH > FB_WIDTH || y+FONT_HEIGHT > FB_HEIGHT || x < 0 || y < 0 {
			x += FONT_WIDTH
			continue
		}
		glyph := fontGlyph(ch)
		for row := 0; row < FONT_HEIGHT; row++ {
			bits := glyph[row]
			off := ((y+row)*FB_WIDTH + x) * FB_BYTES_PER_PIXEL
			for col := 0; col < FONT_WIDTH; col++ {
				if bits&(0x80>>col) != 0 {
					fb[off] = fr
					fb[off+1] = fgc
					fb[off+2] = fbl
					fb[off+3] = fa
				} else {
					fb[off] = 0
					fb[off+1] = 0
					fb[off+2] = 0
					fb[off+3] = 0xFF
				}
				off += FB_BYTES_PER_PIXEL
			}
		}
		vm.fbDirty.AddRect(x, y, x+FONT_WIDTH, y+FONT_HEIGHT)
		x += FONT_WIDTH
		drawn++
	}
	return drawn
}

// SPDX-License-Identifier: MIT

package motion

import "image"

// Mask is a binary foreground mask (0 or 255 per pixel) at model resolution.
// Scale is the edge length in frame pixels of one mask pixel.
type Mask struct {
	Width  int
	Height int
	Scale  int
	Pix    []byte
}

const on = 255

// Open is a morphological opening (erode then dilate) with a 3x3 cross,
// repeated n times each way. Small speckles disappear, blobs keep their size.
func (m Mask) Open(n int) Mask {
	if len(m.Pix) == 0 {
		return m
	}
	out := m
	for i := 0; i < n; i++ {
		out = out.morph(false)
	}
	for i := 0; i < n; i++ {
		out = out.morph(true)
	}
	return out
}

// morph erodes (dilate=false) or dilates with a 3x3 cross. Pixels outside
// the mask count as background.
func (m Mask) morph(dilate bool) Mask {
	out := Mask{Width: m.Width, Height: m.Height, Scale: m.Scale, Pix: make([]byte, len(m.Pix))}
	at := func(x, y int) bool {
		if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
			return false
		}
		return m.Pix[y*m.Width+x] != 0
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c, l, r, u, d := at(x, y), at(x-1, y), at(x+1, y), at(x, y-1), at(x, y+1)
			var set bool
			if dilate {
				set = c || l || r || u || d
			} else {
				set = c && l && r && u && d
			}
			if set {
				out.Pix[y*m.Width+x] = on
			}
		}
	}
	return out
}

// LargestComponent returns the pixel count of the largest 4-connected
// foreground region.
func (m Mask) LargestComponent() int {
	if len(m.Pix) == 0 {
		return 0
	}
	seen := make([]bool, len(m.Pix))
	stack := make([]int, 0, 64)
	largest := 0

	for start := range m.Pix {
		if m.Pix[start] == 0 || seen[start] {
			continue
		}
		size := 0
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++

			x, y := p%m.Width, p/m.Width
			for _, q := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				if q[0] < 0 || q[1] < 0 || q[0] >= m.Width || q[1] >= m.Height {
					continue
				}
				n := q[1]*m.Width + q[0]
				if m.Pix[n] != 0 && !seen[n] {
					seen[n] = true
					stack = append(stack, n)
				}
			}
		}
		if size > largest {
			largest = size
		}
	}
	return largest
}

// Count returns the number of foreground pixels.
func (m Mask) Count() int {
	n := 0
	for _, p := range m.Pix {
		if p != 0 {
			n++
		}
	}
	return n
}

// Image renders the mask as a grayscale image for the processed preview.
func (m Mask) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	copy(img.Pix, m.Pix)
	return img
}

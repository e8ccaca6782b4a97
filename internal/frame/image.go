// SPDX-License-Identifier: MIT

package frame

import (
	"fmt"
	"image"
)

// Image converts the frame into an image.Image for preview encoding.
func (f Frame) Image() (image.Image, error) {
	if err := f.Format.Validate(); err != nil {
		return nil, err
	}
	if len(f.Data) < f.Format.Size() {
		return nil, fmt.Errorf("frame data too short: %d < %d", len(f.Data), f.Format.Size())
	}
	rect := image.Rect(0, 0, f.Format.Width, f.Format.Height)
	switch f.Format.Pixel {
	case Gray8:
		img := image.NewGray(rect)
		copy(img.Pix, f.Data)
		return img, nil
	case BGR24:
		img := image.NewRGBA(rect)
		for i, j := 0, 0; i+2 < len(f.Data) && j+3 < len(img.Pix); i, j = i+3, j+4 {
			img.Pix[j+0] = f.Data[i+2]
			img.Pix[j+1] = f.Data[i+1]
			img.Pix[j+2] = f.Data[i+0]
			img.Pix[j+3] = 0xff
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported pixel format %q", f.Format.Pixel)
	}
}

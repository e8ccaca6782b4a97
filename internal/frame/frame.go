// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package frame defines the unit of video flowing through the pipeline.
//
// A Frame is immutable once produced: the producer MUST NOT modify Data after
// handing the frame on, and consumers only read it. The pre-roll buffer and an
// open segment may hold the same Frame at the same time.
package frame

import (
	"fmt"
	"time"
)

// PixelFormat names the raw layout of Frame.Data.
type PixelFormat string

const (
	// BGR24 is packed 8-bit blue, green, red (the V4L2/OpenCV default).
	BGR24 PixelFormat = "bgr24"
	// Gray8 is one 8-bit luminance sample per pixel.
	Gray8 PixelFormat = "gray"
)

// BytesPerPixel returns the sample size of the format, or 0 if unknown.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case BGR24:
		return 3
	case Gray8:
		return 1
	default:
		return 0
	}
}

// Format is the geometry shared by all frames of one capture session.
type Format struct {
	Width  int
	Height int
	Pixel  PixelFormat
}

// Size returns the number of bytes in one frame of this format.
func (f Format) Size() int {
	return f.Width * f.Height * f.Pixel.BytesPerPixel()
}

// Resolution renders the geometry as "WxH".
func (f Format) Resolution() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// Validate checks that the format describes a non-empty frame.
func (f Format) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame geometry %dx%d", f.Width, f.Height)
	}
	if f.Pixel.BytesPerPixel() == 0 {
		return fmt.Errorf("unsupported pixel format %q", f.Pixel)
	}
	return nil
}

// Frame is one captured picture.
type Frame struct {
	// Seq is assigned by the frame source, starting at 1, strictly increasing
	// within one capture session. Dropped frames leave gaps.
	Seq uint64

	// Timestamp is the capture time (source time, not processing time).
	Timestamp time.Time

	Format Format

	// Data holds Format.Size() bytes. Read-only after creation.
	Data []byte
}

// Luma returns the 8-bit luminance of pixel (x, y).
func (f Frame) Luma(x, y int) uint8 {
	switch f.Format.Pixel {
	case Gray8:
		return f.Data[y*f.Format.Width+x]
	case BGR24:
		i := (y*f.Format.Width + x) * 3
		b, g, r := int(f.Data[i]), int(f.Data[i+1]), int(f.Data[i+2])
		// ITU-R BT.601 integer approximation.
		return uint8((299*r + 587*g + 114*b) / 1000)
	default:
		return 0
	}
}

// SPDX-License-Identifier: MIT

package motion

// Result is the detector's verdict for one frame.
type Result struct {
	Seq uint64
	// Score is the area in full-resolution pixels of the largest foreground blob.
	Score int
	// Motion is Score > area for this frame alone.
	Motion bool
	// Hits counts consecutive motion frames up to and including this one.
	Hits int
	// Triggered is Hits >= the required number of hits.
	Triggered bool
}

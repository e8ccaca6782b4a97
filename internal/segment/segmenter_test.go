// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package segment

import (
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/smartcam/internal/frame"
	"github.com/ManuGH/smartcam/internal/motion"
	"github.com/ManuGH/smartcam/internal/preroll"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0         = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	testFormat = frame.Format{Width: 2, Height: 2, Pixel: frame.Gray8}
)

// memWriter records appended sequence numbers.
type memWriter struct {
	path      string
	seqs      []uint64
	failAt    int // fail the Nth append (1-based); 0 never
	closeErr  error
	closed    bool
	appendErr error
}

func (w *memWriter) Append(f frame.Frame) error {
	if w.failAt > 0 && len(w.seqs)+1 == w.failAt {
		return w.appendErr
	}
	w.seqs = append(w.seqs, f.Seq)
	return nil
}

func (w *memWriter) Close() (Metadata, error) {
	w.closed = true
	return Metadata{Path: w.path, Bytes: int64(len(w.seqs))}, w.closeErr
}

type harness struct {
	t       *testing.T
	seg     *Segmenter
	pre     *preroll.Buffer
	writers []*memWriter
	out     []*Segment
	hits    int
	need    int

	// hooks applied to the next writer created
	nextFailAt  int
	nextOpenErr error
}

func newHarness(t *testing.T, fps int, pre, post, maxDur time.Duration, hits int) *harness {
	t.Helper()
	h := &harness{t: t, need: hits, pre: preroll.New(preroll.Capacity(pre.Seconds(), fps))}
	factory := func(path string, format frame.Format, gotFPS int) (Writer, error) {
		assert.Equal(t, testFormat, format)
		assert.Equal(t, fps, gotFPS)
		if h.nextOpenErr != nil {
			err := h.nextOpenErr
			h.nextOpenErr = nil
			return nil, err
		}
		w := &memWriter{path: path, failAt: h.nextFailAt, appendErr: errors.New("disk full")}
		h.nextFailAt = 0
		h.writers = append(h.writers, w)
		return w, nil
	}
	h.seg = NewSegmenter(Config{FPS: fps, PostRoll: post, MaxDuration: maxDur},
		NewNamer(t.TempDir(), "segment_"), factory, h.pre,
		func(s *Segment) { h.out = append(h.out, s) })
	return h
}

// feed runs frames [from, to] through the segmenter the way the pipeline
// does: detect, step, then push into the pre-roll.
func (h *harness) feed(from, to uint64, motionOn bool, interval time.Duration) []error {
	var errs []error
	for seq := from; seq <= to; seq++ {
		f := frame.Frame{
			Seq:       seq,
			Timestamp: t0.Add(time.Duration(seq-1) * interval),
			Format:    testFormat,
			Data:      make([]byte, testFormat.Size()),
		}
		if motionOn {
			h.hits++
		} else {
			h.hits = 0
		}
		r := motion.Result{Seq: seq, Motion: motionOn, Hits: h.hits, Triggered: h.hits >= h.need}
		if err := h.seg.Step(f, r); err != nil {
			errs = append(errs, err)
		}
		h.pre.Push(f)
	}
	return errs
}

func seqRange(from, to uint64) []uint64 {
	out := make([]uint64, 0, to-from+1)
	for s := from; s <= to; s++ {
		out = append(out, s)
	}
	return out
}

func TestSegmenter_PreAndPostRollScenario(t *testing.T) {
	// fps=10, pre_s=2, post_s=2, hits=3; 20 still, 5 motion, then still.
	h := newHarness(t, 10, 2*time.Second, 2*time.Second, 0, 3)
	const interval = 100 * time.Millisecond

	require.Empty(t, h.feed(1, 20, false, interval))
	require.Empty(t, h.feed(21, 25, true, interval))
	assert.Equal(t, PhaseRecording, h.seg.Phase())
	require.Empty(t, h.feed(26, 60, false, interval))

	require.Len(t, h.out, 1)
	require.Len(t, h.writers, 1)
	info := h.out[0].Info()
	assert.Equal(t, StateClosed, info.State)
	assert.Equal(t, 43, info.Frames)
	assert.True(t, h.writers[0].closed)

	// 20 pre-roll frames (3..22), the trigger and the rest of the motion
	// (23..25), then 2 s of post-roll (26..45).
	if diff := cmp.Diff(seqRange(3, 45), h.writers[0].seqs); diff != "" {
		t.Fatalf("segment frames mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, t0.Add(2*interval), info.Start)
	assert.Equal(t, t0.Add(44*interval), info.End)
	assert.Equal(t, PhaseIdle, h.seg.Phase())
	assert.Nil(t, h.seg.Current())
}

func TestSegmenter_NoTriggerBelowHits(t *testing.T) {
	h := newHarness(t, 10, 2*time.Second, 2*time.Second, 0, 3)
	h.feed(1, 10, false, 100*time.Millisecond)
	h.feed(11, 12, true, 100*time.Millisecond)
	h.feed(13, 40, false, 100*time.Millisecond)

	assert.Empty(t, h.writers)
	assert.Empty(t, h.out)
}

func TestSegmenter_MotionDuringPostRollExtendsSegment(t *testing.T) {
	h := newHarness(t, 10, time.Second, 2*time.Second, 0, 3)
	const interval = 100 * time.Millisecond

	h.feed(1, 20, false, interval)
	h.feed(21, 25, true, interval)
	h.feed(26, 35, false, interval) // 1 s into post-roll
	assert.Equal(t, PhasePostRoll, h.seg.Phase())
	h.feed(36, 37, true, interval) // below hits, still continues the segment
	assert.Equal(t, PhaseRecording, h.seg.Phase())
	h.feed(38, 80, false, interval)

	require.Len(t, h.out, 1, "motion inside the post-roll window must not split the segment")
	// Post-roll restarts at 38 and runs until 57.
	assert.Equal(t, seqRange(13, 57), h.writers[0].seqs)
}

func TestSegmenter_GapLongerThanPostRollSplitsSegments(t *testing.T) {
	h := newHarness(t, 10, 2*time.Second, 2*time.Second, 0, 3)
	const interval = 100 * time.Millisecond

	require.Empty(t, h.feed(1, 20, false, interval))
	require.Empty(t, h.feed(21, 25, true, interval))
	require.Empty(t, h.feed(26, 80, false, interval)) // 5.5 s without motion
	require.Len(t, h.out, 1, "first episode closed after its post-roll")
	assert.Equal(t, PhaseIdle, h.seg.Phase())

	require.Empty(t, h.feed(81, 85, true, interval))
	assert.Equal(t, PhaseRecording, h.seg.Phase())
	require.Empty(t, h.feed(86, 120, false, interval))

	require.Len(t, h.out, 2)
	require.Len(t, h.writers, 2)
	first, second := h.out[0].Info(), h.out[1].Info()
	assert.Equal(t, StateClosed, first.State)
	assert.Equal(t, StateClosed, second.State)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Path, second.Path)
	assert.Greater(t, second.Index, first.Index)
	assert.True(t, second.Start.After(first.End))

	if diff := cmp.Diff(seqRange(3, 45), h.writers[0].seqs); diff != "" {
		t.Fatalf("first segment frames mismatch (-want +got):\n%s", diff)
	}
	// Trigger on 83: pre-roll snapshot 63..82, then live frames 83..85
	// and 2 s of post-roll 86..105, without gaps.
	if diff := cmp.Diff(seqRange(63, 105), h.writers[1].seqs); diff != "" {
		t.Fatalf("second segment frames mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 43, second.Frames)
}

func TestSegmenter_IndexIncreasesAcrossSegmenters(t *testing.T) {
	run := func() uint64 {
		h := newHarness(t, 10, 0, time.Second, 0, 1)
		require.Empty(t, h.feed(1, 1, true, 100*time.Millisecond))
		require.NoError(t, h.seg.Shutdown())
		require.Len(t, h.out, 1)
		return h.out[0].Index
	}
	first := run()
	second := run()
	assert.Greater(t, second, first, "a new pipeline run continues the numbering")
}

func TestSegmenter_ShutdownWhileRecording(t *testing.T) {
	h := newHarness(t, 10, time.Second, 2*time.Second, 0, 2)
	h.feed(1, 10, false, 100*time.Millisecond)
	h.feed(11, 14, true, 100*time.Millisecond)
	require.NotNil(t, h.seg.Current())

	require.NoError(t, h.seg.Shutdown())
	require.Len(t, h.out, 1)
	assert.Equal(t, StateClosed, h.out[0].State())
	assert.Equal(t, seqRange(2, 14), h.writers[0].seqs)
	assert.Equal(t, PhaseIdle, h.seg.Phase())

	assert.NoError(t, h.seg.Shutdown(), "shutdown when idle is a no-op")
	assert.Len(t, h.out, 1)
}

func TestSegmenter_ZeroPreRoll(t *testing.T) {
	h := newHarness(t, 10, 0, 0, 0, 1)
	h.feed(1, 5, false, 100*time.Millisecond)
	h.feed(6, 6, true, 100*time.Millisecond)
	h.feed(7, 9, false, 100*time.Millisecond)

	require.Len(t, h.out, 1)
	assert.Equal(t, []uint64{6, 7}, h.writers[0].seqs)
}

func TestSegmenter_WriterOpenFailure(t *testing.T) {
	h := newHarness(t, 10, time.Second, time.Second, 0, 1)
	h.nextOpenErr = errors.New("encoder missing")

	errs := h.feed(1, 1, true, 100*time.Millisecond)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrWriter)
	require.Len(t, h.out, 1)
	assert.Equal(t, StateFailed, h.out[0].State())
	assert.Equal(t, PhaseIdle, h.seg.Phase())

	// The next trigger opens a fresh segment.
	require.Empty(t, h.feed(2, 2, true, 100*time.Millisecond))
	assert.NotNil(t, h.seg.Current())
}

func TestSegmenter_AppendFailureFailsSegmentAndContinues(t *testing.T) {
	h := newHarness(t, 10, 0, time.Second, 0, 1)
	h.nextFailAt = 3

	errs := h.feed(1, 5, true, 100*time.Millisecond)
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], ErrWriter)

	require.GreaterOrEqual(t, len(h.out), 1)
	failed := h.out[0].Info()
	assert.Equal(t, StateFailed, failed.State)
	assert.Equal(t, 2, failed.Frames, "frames written before the failure are kept")
	assert.ErrorIs(t, failed.Err, ErrWriter)
	assert.True(t, h.writers[0].closed)

	// Motion continues, so a new segment was opened right after.
	require.Len(t, h.writers, 2)
	assert.Equal(t, []uint64{4, 5}, h.writers[1].seqs)
}

func TestSegmenter_CloseFailureFailsSegment(t *testing.T) {
	h := newHarness(t, 10, 0, 0, 0, 1)
	h.feed(1, 1, true, 100*time.Millisecond)
	h.writers[0].closeErr = errors.New("moov atom")

	errs := h.feed(2, 3, false, 100*time.Millisecond)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrWriter)
	require.Len(t, h.out, 1)
	assert.Equal(t, StateFailed, h.out[0].State())
}

func TestSegmenter_MaxDurationRollsOver(t *testing.T) {
	h := newHarness(t, 10, 0, time.Second, 3*time.Second, 1)
	const interval = 100 * time.Millisecond

	var maxOpen int
	for seq := uint64(1); seq <= 100; seq++ {
		h.feed(seq, seq, true, interval)
		open := 0
		for _, w := range h.writers {
			if !w.closed {
				open++
			}
		}
		if open > maxOpen {
			maxOpen = open
		}
	}
	require.NoError(t, h.seg.Shutdown())

	assert.Equal(t, 1, maxOpen, "at most one open segment at any time")
	require.Len(t, h.out, 4)
	var all []uint64
	for i, w := range h.writers {
		assert.LessOrEqual(t, len(w.seqs), 30, "segment %d exceeds max duration", i)
		all = append(all, w.seqs...)
	}
	assert.Equal(t, seqRange(1, 100), all, "rollover keeps footage contiguous without duplicates")
}

func TestSegmenter_NamesFollowFirstFrameTime(t *testing.T) {
	h := newHarness(t, 10, 0, 0, 0, 1)
	h.feed(1, 1, true, time.Second)
	h.feed(2, 3, false, time.Second)

	require.Len(t, h.out, 1)
	assert.Contains(t, h.out[0].Path, "segment_20250314_092653.avi")
}

func TestSequenced_RejectsOutOfOrder(t *testing.T) {
	inner := &memWriter{}
	w := Sequenced(inner, "/videos/a.avi")

	require.NoError(t, w.Append(frame.Frame{Seq: 5, Timestamp: t0}))
	require.NoError(t, w.Append(frame.Frame{Seq: 7, Timestamp: t0.Add(time.Second)}))
	assert.ErrorIs(t, w.Append(frame.Frame{Seq: 7}), ErrOutOfOrder)
	assert.ErrorIs(t, w.Append(frame.Frame{Seq: 6}), ErrOutOfOrder)

	meta, err := w.Close()
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 7}, inner.seqs)
	assert.Equal(t, 2, meta.Frames)
	assert.Equal(t, uint64(5), meta.FirstSeq)
	assert.Equal(t, uint64(7), meta.LastSeq)
	assert.Equal(t, t0, meta.Start)
	assert.Equal(t, t0.Add(time.Second), meta.End)
}

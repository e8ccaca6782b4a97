// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"os"
	"strconv"
	"strings"

	"github.com/ManuGH/smartcam/internal/frame"
)

var baseArgs = []string{"-hide_banner", "-loglevel", "error"}

// captureArgs reads device and writes packed frames of format to stdout.
// /dev/* is opened through V4L2; anything else is handed to ffmpeg as an
// input URL or file, files being read at their native rate.
func captureArgs(device string, fps int, format frame.Format) []string {
	args := append([]string{}, baseArgs...)
	args = append(args, "-nostdin")
	switch {
	case strings.HasPrefix(device, "/dev/"):
		args = append(args, "-f", "v4l2", "-framerate", strconv.Itoa(fps))
	case isRegularFile(device):
		args = append(args, "-re")
	}
	args = append(args,
		"-i", device,
		"-an",
		"-vf", "scale="+strconv.Itoa(format.Width)+":"+strconv.Itoa(format.Height),
		"-r", strconv.Itoa(fps),
		"-pix_fmt", string(format.Pixel),
		"-f", "rawvideo",
		"pipe:1",
	)
	return args
}

// encoderArgs encodes packed frames from stdin to an MPEG-4 Part 2 AVI
// tagged XVID.
func encoderArgs(path string, format frame.Format, fps int) []string {
	args := append([]string{}, baseArgs...)
	return append(args,
		"-f", "rawvideo",
		"-pix_fmt", string(format.Pixel),
		"-video_size", format.Resolution(),
		"-framerate", strconv.Itoa(fps),
		"-i", "pipe:0",
		"-an",
		"-c:v", "mpeg4",
		"-vtag", "XVID",
		"-q:v", "5",
		"-f", "avi",
		"-y", path,
	)
}

// transcodeArgs re-encodes in to H.264 in an MP4 container at out.
func transcodeArgs(in, out string, crf int, preset string) []string {
	args := append([]string{}, baseArgs...)
	return append(args,
		"-nostdin",
		"-y",
		"-i", in,
		"-an",
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	)
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

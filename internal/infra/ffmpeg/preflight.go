// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Version runs "ffmpeg -version" and returns its first line. It is used at
// startup to fail fast when the binary is missing.
func Version(ctx context.Context, bin string) (string, error) {
	// #nosec G204 -- binary comes from operator configuration
	out, err := exec.CommandContext(ctx, bin, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("run %s -version: %w", bin, err)
	}
	sc := bufio.NewScanner(bytes.NewReader(out))
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	return "", fmt.Errorf("%s -version printed nothing", bin)
}

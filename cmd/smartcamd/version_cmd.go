package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/smartcam/internal/config"
	"github.com/ManuGH/smartcam/internal/infra/ffmpeg"
	"github.com/ManuGH/smartcam/internal/version"
)

func newVersionCmd() *cobra.Command {
	var bin string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build and ffmpeg versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "smartcamd %s\n", version.String())

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			v, err := ffmpeg.Version(ctx, bin)
			if err != nil {
				_, _ = fmt.Fprintf(out, "ffmpeg: unavailable (%v)\n", err)
				return nil
			}
			_, _ = fmt.Fprintf(out, "ffmpeg: %s\n", v)
			return nil
		},
	}
	cmd.Flags().StringVar(&bin, "ffmpeg-bin", config.DefaultFFmpegBin, "ffmpeg binary to probe")
	return cmd
}

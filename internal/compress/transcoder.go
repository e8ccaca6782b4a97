package compress

import "context"

// Transcoder converts the recording at in into a compressed file at out.
// Implementations must not leave a partial file at out on failure and must
// stop promptly when ctx is cancelled.
type Transcoder interface {
	Transcode(ctx context.Context, in, out string) error
}

// TranscoderFunc adapts a function to the Transcoder interface.
type TranscoderFunc func(ctx context.Context, in, out string) error

// Transcode calls f(ctx, in, out).
func (f TranscoderFunc) Transcode(ctx context.Context, in, out string) error {
	return f(ctx, in, out)
}

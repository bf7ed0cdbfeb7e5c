// Package media defines the boundary to the external transcoding tool.
// All operations run CPU-heavy work in a separate process; callers bound
// them with a context.
package media

import "context"

type Processor interface {
	// ExtractOpus strips the audio-only Ogg/Opus stream out of a WebM
	// container chunk without re-encoding. Non-WebM input is returned
	// unchanged. An error means the caller should forward the original
	// container bytes instead.
	ExtractOpus(ctx context.Context, container []byte) ([]byte, error)
	// Transcode converts a merged container file into a fast-start MP4,
	// forcing a constant frame rate and tolerating the structural damage
	// typical of live-captured fragments.
	Transcode(ctx context.Context, src, dst string) error
	// ProbeDuration reports the container duration in seconds.
	ProbeDuration(ctx context.Context, path string) (float64, error)
	// ConvertToWAV resamples arbitrary audio to 16kHz mono 16-bit WAV for
	// the batch recognizer.
	ConvertToWAV(ctx context.Context, audio []byte) ([]byte, error)
}

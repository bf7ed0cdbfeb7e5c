// Package chunk holds pure helpers for sniffing and validating the binary
// chunks uploaded by interview clients. MediaRecorder streams arrive as WebM
// fragments; only chunk 0 carries the EBML header, later fragments are
// headerless cluster continuations.
package chunk

import (
	"errors"
	"fmt"
)

type Format string

const (
	FormatWebM    Format = "webm"
	FormatOgg     Format = "ogg"
	FormatWAV     Format = "wav"
	FormatFLAC    Format = "flac"
	FormatMP3     Format = "mp3"
	FormatUnknown Format = "unknown"
)

const (
	// MinVideoChunkBytes rejects fragments too small to contain any media.
	MinVideoChunkBytes = 50
	// MinMergeChunkBytes is the floor for a fragment to participate in a merge.
	MinMergeChunkBytes = 100
	// LoneChunkMinBytes: a recording that produced a single chunk smaller than
	// this is a truncated capture, not a playable video.
	LoneChunkMinBytes = 100_000
)

// ebmlMagic is the WebM/Matroska EBML header.
var ebmlMagic = []byte{0x1a, 0x45, 0xdf, 0xa3}

var (
	ErrChunkTooSmall    = errors.New("chunk below minimum size")
	ErrUnreadableHeader = errors.New("chunk header unreadable")
)

// SniffFormat inspects the leading magic bytes of a chunk.
func SniffFormat(b []byte) Format {
	if len(b) < 4 {
		return FormatUnknown
	}
	switch {
	case IsWebM(b):
		return FormatWebM
	case string(b[:4]) == "OggS":
		return FormatOgg
	case string(b[:4]) == "RIFF":
		return FormatWAV
	case string(b[:4]) == "fLaC":
		return FormatFLAC
	case b[0] == 0xff && (b[1] == 0xfb || b[1] == 0xf3):
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// IsWebM reports whether the chunk starts with the EBML header.
func IsWebM(b []byte) bool {
	if len(b) < len(ebmlMagic) {
		return false
	}
	for i, m := range ebmlMagic {
		if b[i] != m {
			return false
		}
	}
	return true
}

// ValidateVideoChunk rejects chunks that are undersized or whose header
// cannot be read. It does not require a specific container format: only
// chunk 0 of a WebM stream carries the EBML magic.
func ValidateVideoChunk(b []byte) error {
	if len(b) < 4 {
		return ErrUnreadableHeader
	}
	if len(b) < MinVideoChunkBytes {
		return fmt.Errorf("%w: %d bytes (minimum: %d)", ErrChunkTooSmall, len(b), MinVideoChunkBytes)
	}
	return nil
}

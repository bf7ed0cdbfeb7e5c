package chunk

import (
	"bytes"
	"errors"
	"testing"
)

func webmChunk(size int) []byte {
	b := make([]byte, size)
	copy(b, []byte{0x1a, 0x45, 0xdf, 0xa3})
	return b
}

func TestSniffFormat(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want Format
	}{
		{"webm", webmChunk(16), FormatWebM},
		{"ogg", []byte("OggS\x00\x02"), FormatOgg},
		{"wav", []byte("RIFF\x24\x08\x00\x00WAVE"), FormatWAV},
		{"flac", []byte("fLaC\x00\x00"), FormatFLAC},
		{"mp3", []byte{0xff, 0xfb, 0x90, 0x00}, FormatMP3},
		{"mp3 alt", []byte{0xff, 0xf3, 0x90, 0x00}, FormatMP3},
		{"unknown", []byte{0x00, 0x01, 0x02, 0x03}, FormatUnknown},
		{"short", []byte{0x1a}, FormatUnknown},
		{"empty", nil, FormatUnknown},
	}
	for _, tc := range cases {
		if got := SniffFormat(tc.in); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsWebM(t *testing.T) {
	if !IsWebM(webmChunk(8)) {
		t.Fatal("expected EBML header to be detected")
	}
	if IsWebM([]byte("OggS")) {
		t.Fatal("expected non-webm header to be rejected")
	}
	if IsWebM([]byte{0x1a, 0x45}) {
		t.Fatal("expected truncated header to be rejected")
	}
}

func TestValidateVideoChunk_TooSmall(t *testing.T) {
	err := ValidateVideoChunk(bytes.Repeat([]byte{0xab}, MinVideoChunkBytes-1))
	if !errors.Is(err, ErrChunkTooSmall) {
		t.Fatalf("expected ErrChunkTooSmall, got %v", err)
	}
}

func TestValidateVideoChunk_UnreadableHeader(t *testing.T) {
	err := ValidateVideoChunk([]byte{0x1a, 0x45})
	if !errors.Is(err, ErrUnreadableHeader) {
		t.Fatalf("expected ErrUnreadableHeader, got %v", err)
	}
}

func TestValidateVideoChunk_Valid(t *testing.T) {
	if err := ValidateVideoChunk(webmChunk(MinVideoChunkBytes)); err != nil {
		t.Fatalf("expected valid chunk, got %v", err)
	}
	// Headerless continuation fragments are valid too.
	if err := ValidateVideoChunk(bytes.Repeat([]byte{0x42}, 512)); err != nil {
		t.Fatalf("expected continuation fragment to validate, got %v", err)
	}
}

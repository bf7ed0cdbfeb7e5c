package video

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hireloop/interview-capture/internal/observability"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), observability.NewMetrics(prometheus.NewRegistry()))
}

func webmChunk(size int) []byte {
	data := bytes.Repeat([]byte{0x42}, size)
	copy(data, []byte{0x1a, 0x45, 0xdf, 0xa3})
	return data
}

func TestSaveChunkSequentialIndexing(t *testing.T) {
	s := newTestStore(t)

	for want := 0; want < 3; want++ {
		got, err := s.SaveChunk("resp-1", webmChunk(256), "webm", -1)
		if err != nil {
			t.Fatalf("SaveChunk failed: %v", err)
		}
		if got != want {
			t.Fatalf("expected index %d, got %d", want, got)
		}
	}
}

func TestSaveChunkExplicitIndex(t *testing.T) {
	s := newTestStore(t)

	got, err := s.SaveChunk("resp-1", webmChunk(256), "webm", 5)
	if err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}
	if got != 5 {
		t.Fatalf("expected index 5, got %d", got)
	}
	if _, err := os.Stat(filepath.Join(s.ResponseDir("resp-1"), "chunk_00005.webm")); err != nil {
		t.Fatalf("expected chunk file on disk: %v", err)
	}
}

func TestSaveChunkCollisionFallsToAppend(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.SaveChunk("resp-1", webmChunk(256), "webm", 0); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}
	if _, err := s.SaveChunk("resp-1", webmChunk(256), "webm", 3); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}
	got, err := s.SaveChunk("resp-1", webmChunk(256), "webm", 3)
	if err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}
	if got != 4 {
		t.Fatalf("expected collision to fall to index 4, got %d", got)
	}
}

func TestSaveChunkRejectsEmptyData(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveChunk("resp-1", nil, "webm", -1); err == nil {
		t.Fatal("expected error for empty chunk data")
	}
}

func TestSaveChunkNormalizesExtension(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveChunk("resp-1", webmChunk(256), "exe", -1); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.ResponseDir("resp-1"), "chunk_00000.webm")); err != nil {
		t.Fatalf("expected unknown extension to fall back to webm: %v", err)
	}
}

func TestValidChunksOrdersAndTruncatesAtGap(t *testing.T) {
	s := newTestStore(t)

	for _, idx := range []int{0, 1, 2, 4} {
		if _, err := s.SaveChunk("resp-1", webmChunk(256), "webm", idx); err != nil {
			t.Fatalf("SaveChunk failed: %v", err)
		}
	}

	chunks, err := s.ValidChunks("resp-1")
	if err != nil {
		t.Fatalf("ValidChunks failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks before the gap, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("expected index %d at position %d, got %d", i, i, c.Index)
		}
	}
}

func TestValidChunksSkipsUndersized(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.SaveChunk("resp-1", webmChunk(256), "webm", 0); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}
	// Write an undersized fragment directly; SaveChunk would not produce one.
	tiny := filepath.Join(s.ResponseDir("resp-1"), "chunk_00001.webm")
	if err := os.WriteFile(tiny, []byte("tiny"), 0o644); err != nil {
		t.Fatalf("write tiny chunk: %v", err)
	}

	chunks, err := s.ValidChunks("resp-1")
	if err != nil {
		t.Fatalf("ValidChunks failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected undersized chunk to be dropped, got %d chunks", len(chunks))
	}
}

func TestValidChunksMissingDir(t *testing.T) {
	s := newTestStore(t)
	chunks, err := s.ValidChunks("never-seen")
	if err != nil {
		t.Fatalf("ValidChunks failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

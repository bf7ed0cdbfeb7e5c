// Package video persists capture chunks to scratch storage and turns them
// into a single delivered MP4 artifact.
package video

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hireloop/interview-capture/internal/chunk"
	"github.com/hireloop/interview-capture/internal/observability"
)

var (
	ErrNoValidChunks      = errors.New("no valid video chunks to merge")
	ErrMissingHeaderChunk = errors.New("first video chunk has no container header")
	ErrMergeInProgress    = errors.New("merge already in progress")
)

// Chunk is one on-disk capture fragment.
type Chunk struct {
	Index int
	Path  string
	Size  int64
}

// Store lays chunks out as {scratch_root}/{response_id}/chunk_{index:05d}.{ext}.
type Store struct {
	scratchRoot string
	metrics     *observability.Metrics

	// Serializes index allocation; concurrent saves for one response must
	// not hand out the same slot.
	mu sync.Mutex
}

func NewStore(scratchRoot string, metrics *observability.Metrics) *Store {
	return &Store{scratchRoot: scratchRoot, metrics: metrics}
}

func (s *Store) ResponseDir(responseID string) string {
	return filepath.Join(s.scratchRoot, responseID)
}

// SaveChunk writes one fragment. A negative index means append at the next
// free slot; an explicit index that is already occupied falls through to
// max+1 instead of overwriting what is there.
func (s *Store) SaveChunk(responseID string, data []byte, ext string, index int) (int, error) {
	if len(data) == 0 {
		return 0, errors.New("empty chunk data")
	}
	ext = normalizeExt(ext)
	dir := s.ResponseDir(responseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create scratch dir: %w", err)
	}

	s.mu.Lock()
	indices, err := s.chunkIndices(dir)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	next := 0
	if len(indices) > 0 {
		next = indices[len(indices)-1] + 1
	}
	if index < 0 {
		index = next
	} else if containsIndex(indices, index) {
		slog.Warn("chunk index collision, appending instead",
			"response_id", responseID, "requested_index", index, "assigned_index", next)
		index = next
	}
	path := filepath.Join(dir, fmt.Sprintf("chunk_%05d.%s", index, ext))
	writeErr := os.WriteFile(path, data, 0o644)
	s.mu.Unlock()

	if writeErr != nil {
		return 0, fmt.Errorf("write chunk %d: %w", index, writeErr)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("verify chunk %d: %w", index, err)
	}
	if info.Size() != int64(len(data)) {
		_ = os.Remove(path)
		return 0, fmt.Errorf("chunk %d short write: wrote %d of %d bytes", index, info.Size(), len(data))
	}

	s.metrics.VideoChunksSaved.Inc()
	return index, nil
}

// ValidChunks returns mergeable fragments in ascending order: present from
// index 0 without gaps, each at least MinMergeChunkBytes and with a readable
// header. Anything after the first gap is ignored.
func (s *Store) ValidChunks(responseID string) ([]Chunk, error) {
	dir := s.ResponseDir(responseID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scratch dir: %w", err)
	}

	byIndex := make(map[int]Chunk)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		idx, ok := parseChunkIndex(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			slog.Warn("skipping unreadable chunk", "response_id", responseID, "file", e.Name(), "error", err)
			continue
		}
		if info.Size() < chunk.MinMergeChunkBytes {
			slog.Warn("skipping undersized chunk",
				"response_id", responseID, "file", e.Name(), "size", info.Size())
			continue
		}
		byIndex[idx] = Chunk{Index: idx, Path: filepath.Join(dir, e.Name()), Size: info.Size()}
	}

	var chunks []Chunk
	for i := 0; ; i++ {
		c, ok := byIndex[i]
		if !ok {
			break
		}
		chunks = append(chunks, c)
	}
	if len(chunks) < len(byIndex) {
		slog.Warn("chunk sequence has a gap, truncating",
			"response_id", responseID, "usable", len(chunks), "present", len(byIndex))
	}
	return chunks, nil
}

// Cleanup removes the response's scratch directory.
func (s *Store) Cleanup(responseID string) error {
	return os.RemoveAll(s.ResponseDir(responseID))
}

func (s *Store) chunkIndices(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scratch dir: %w", err)
	}
	var indices []int
	for _, e := range entries {
		if idx, ok := parseChunkIndex(e.Name()); ok {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)
	return indices, nil
}

func parseChunkIndex(name string) (int, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	numeric, found := strings.CutPrefix(base, "chunk_")
	if !found {
		return 0, false
	}
	idx, err := strconv.Atoi(numeric)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func containsIndex(sorted []int, idx int) bool {
	i := sort.SearchInts(sorted, idx)
	return i < len(sorted) && sorted[i] == idx
}

func normalizeExt(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	switch ext {
	case "webm", "mp4", "mkv", "ogg":
		return ext
	default:
		return "webm"
	}
}

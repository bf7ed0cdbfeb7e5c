package video

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hireloop/interview-capture/internal/chunk"
	"github.com/hireloop/interview-capture/internal/media"
	"github.com/hireloop/interview-capture/internal/observability"
	"github.com/hireloop/interview-capture/internal/storage"
)

const mergedSizeToleranceBytes = 1 << 20

// Merger concatenates a response's chunks, transcodes the result to MP4,
// and delivers it to the storage backend.
type Merger struct {
	store   *Store
	media   media.Processor
	backend storage.Backend
	metrics *observability.Metrics

	mu      sync.Mutex
	merging map[string]struct{}
}

func NewMerger(store *Store, proc media.Processor, backend storage.Backend, metrics *observability.Metrics) *Merger {
	return &Merger{
		store:   store,
		media:   proc,
		backend: backend,
		metrics: metrics,
		merging: make(map[string]struct{}),
	}
}

// MergeAndDeliver runs the full pipeline for one response and returns the
// artifact URL. At most one merge per response runs at a time; a concurrent
// call returns ErrMergeInProgress. Scratch files are removed only after the
// artifact is durably delivered, so a failed run can be retried.
func (m *Merger) MergeAndDeliver(ctx context.Context, responseID string) (string, error) {
	m.mu.Lock()
	if _, busy := m.merging[responseID]; busy {
		m.mu.Unlock()
		return "", ErrMergeInProgress
	}
	m.merging[responseID] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.merging, responseID)
		m.mu.Unlock()
	}()

	key := responseID + ".mp4"
	if exists, err := m.backend.Exists(ctx, key); err != nil {
		slog.Warn("artifact existence check failed", "response_id", responseID, "error", err)
	} else if exists {
		slog.Info("artifact already delivered, skipping merge", "response_id", responseID)
		return m.backend.URL(key), nil
	}

	start := time.Now()
	url, err := m.run(ctx, responseID, key)
	if err != nil {
		return "", err
	}
	m.metrics.MergesSucceeded.Inc()
	m.metrics.MergeDuration.Observe(time.Since(start).Seconds())
	return url, nil
}

func (m *Merger) run(ctx context.Context, responseID, key string) (string, error) {
	chunks, err := m.store.ValidChunks(responseID)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", ErrNoValidChunks
	}
	if err := m.checkHeaderChunk(responseID, chunks); err != nil {
		return "", err
	}

	dir := m.store.ResponseDir(responseID)
	mergedPath := filepath.Join(dir, "merged.webm")
	expected, err := concatChunks(chunks, mergedPath)
	if err != nil {
		return "", fmt.Errorf("concatenate chunks: %w", err)
	}
	info, err := os.Stat(mergedPath)
	if err != nil {
		return "", fmt.Errorf("stat merged file: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("merged file is empty")
	}
	if sizeMismatchExceedsTolerance(expected, info.Size()) {
		slog.Warn("merged size differs from chunk total",
			"response_id", responseID, "expected", expected, "actual", info.Size())
	}
	m.checkMergedHeader(responseID, mergedPath)

	transcodedPath := filepath.Join(dir, key)
	if err := m.media.Transcode(ctx, mergedPath, transcodedPath); err != nil {
		return "", err
	}
	tInfo, err := os.Stat(transcodedPath)
	if err != nil {
		return "", fmt.Errorf("stat transcoded file: %w", err)
	}
	if tInfo.Size() == 0 {
		return "", fmt.Errorf("transcoded file is empty")
	}
	if duration, err := m.media.ProbeDuration(ctx, transcodedPath); err != nil {
		slog.Warn("duration probe failed", "response_id", responseID, "error", err)
	} else if duration <= 0 {
		slog.Warn("transcoded file reports no duration", "response_id", responseID)
	} else {
		slog.Info("transcode validated", "response_id", responseID, "duration_seconds", duration)
	}

	f, err := os.Open(transcodedPath)
	if err != nil {
		return "", fmt.Errorf("open transcoded file: %w", err)
	}
	url, err := m.backend.Put(ctx, key, f, tInfo.Size())
	_ = f.Close()
	if err != nil {
		return "", fmt.Errorf("deliver artifact: %w", err)
	}

	if err := m.store.Cleanup(responseID); err != nil {
		slog.Warn("scratch cleanup failed", "response_id", responseID, "error", err)
	}
	slog.Info("merge delivered",
		"response_id", responseID, "chunks", len(chunks), "url", url, "size", tInfo.Size())
	return url, nil
}

// checkHeaderChunk enforces the merge preconditions on chunk 0: it must open
// the container, and a session that only ever produced one tiny fragment is
// not worth transcoding.
func (m *Merger) checkHeaderChunk(responseID string, chunks []Chunk) error {
	head := chunks[0]
	header := make([]byte, 16)
	f, err := os.Open(head.Path)
	if err != nil {
		return fmt.Errorf("open header chunk: %w", err)
	}
	n, _ := io.ReadFull(f, header)
	_ = f.Close()
	if n < 4 || !chunk.IsWebM(header[:n]) {
		return fmt.Errorf("%w: response %s", ErrMissingHeaderChunk, responseID)
	}
	if len(chunks) == 1 && head.Size < chunk.LoneChunkMinBytes {
		return fmt.Errorf("%w: lone chunk of %d bytes", ErrNoValidChunks, head.Size)
	}
	return nil
}

func (m *Merger) checkMergedHeader(responseID, mergedPath string) {
	f, err := os.Open(mergedPath)
	if err != nil {
		return
	}
	defer f.Close()
	header := make([]byte, 4)
	if n, _ := io.ReadFull(f, header); n == 4 && !chunk.IsWebM(header) {
		slog.Warn("merged file does not start with a container header", "response_id", responseID)
	}
}

// sizeMismatchExceedsTolerance reports whether the merged file deviates from
// the chunk byte total by more than the larger of 1% and 1MB. Small absolute
// deviations are expected from filesystem rounding and are not worth a
// warning on big artifacts.
func sizeMismatchExceedsTolerance(expected, actual int64) bool {
	diff := expected - actual
	if diff < 0 {
		diff = -diff
	}
	tolerance := expected / 100
	if tolerance < mergedSizeToleranceBytes {
		tolerance = mergedSizeToleranceBytes
	}
	return diff > tolerance
}

func concatChunks(chunks []Chunk, dst string) (int64, error) {
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	var total int64
	for _, c := range chunks {
		in, err := os.Open(c.Path)
		if err != nil {
			return 0, fmt.Errorf("open chunk %d: %w", c.Index, err)
		}
		n, err := io.Copy(out, in)
		_ = in.Close()
		if err != nil {
			return 0, fmt.Errorf("copy chunk %d: %w", c.Index, err)
		}
		total += n
	}
	if err := out.Sync(); err != nil {
		return 0, err
	}
	return total, nil
}

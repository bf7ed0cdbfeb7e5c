package video

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hireloop/interview-capture/internal/interview"
	"github.com/hireloop/interview-capture/internal/observability"
)

const (
	mergeAttempts     = 3
	mergeRetryBackoff = 5 * time.Second
)

// JobRunner executes merge-and-deliver in the background so ending a session
// never waits on ffmpeg. Jobs are tracked for graceful shutdown and deduped
// per response.
type JobRunner struct {
	merger  *Merger
	store   interview.Store
	metrics *observability.Metrics

	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewJobRunner(merger *Merger, store interview.Store, metrics *observability.Metrics) *JobRunner {
	return &JobRunner{
		merger:   merger,
		store:    store,
		metrics:  metrics,
		inflight: make(map[string]struct{}),
	}
}

// ScheduleMerge starts a background merge for the response. A job already
// in flight for the same response makes this a no-op.
func (r *JobRunner) ScheduleMerge(responseID string) {
	r.mu.Lock()
	if _, busy := r.inflight[responseID]; busy {
		r.mu.Unlock()
		slog.Info("merge job already scheduled", "response_id", responseID)
		return
	}
	r.inflight[responseID] = struct{}{}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.inflight, responseID)
			r.mu.Unlock()
		}()
		r.runMerge(responseID)
	}()
}

func (r *JobRunner) runMerge(responseID string) {
	ctx := context.Background()
	var lastErr error
	for attempt := 1; attempt <= mergeAttempts; attempt++ {
		url, err := r.merger.MergeAndDeliver(ctx, responseID)
		if err == nil {
			r.recordVideoURL(ctx, responseID, url)
			return
		}
		if errors.Is(err, ErrMergeInProgress) {
			slog.Info("merge already running elsewhere, leaving job", "response_id", responseID)
			return
		}
		if errors.Is(err, ErrNoValidChunks) || errors.Is(err, ErrMissingHeaderChunk) {
			// Precondition failures do not heal with retries.
			slog.Warn("merge preconditions not met, giving up", "response_id", responseID, "error", err)
			r.metrics.MergesFailed.Inc()
			return
		}
		lastErr = err
		slog.Warn("merge attempt failed",
			"response_id", responseID, "attempt", attempt, "max_attempts", mergeAttempts, "error", err)
		if attempt < mergeAttempts {
			time.Sleep(mergeRetryBackoff)
		}
	}
	r.metrics.MergesFailed.Inc()
	slog.Error("merge job exhausted retries, chunks retained for manual recovery",
		"response_id", responseID, "error", lastErr)
}

func (r *JobRunner) recordVideoURL(ctx context.Context, responseID, url string) {
	if err := r.store.SetVideoURL(ctx, responseID, url); err != nil {
		slog.Error("failed to record video url", "response_id", responseID, "url", url, "error", err)
	}
}

// Shutdown waits for in-flight merge jobs until the context expires.
func (r *JobRunner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

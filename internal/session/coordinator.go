// Package session coordinates one interview capture session per client
// connection: audio relay into the streaming transcriber, transcript fanout
// back to the client, chunk buffering for the final pass, and video chunk
// dispatch.
package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hireloop/interview-capture/internal/chunk"
	"github.com/hireloop/interview-capture/internal/events"
	"github.com/hireloop/interview-capture/internal/interview"
	"github.com/hireloop/interview-capture/internal/media"
	"github.com/hireloop/interview-capture/internal/observability"
	"github.com/hireloop/interview-capture/internal/registry"
	"github.com/hireloop/interview-capture/internal/relay"
	"github.com/hireloop/interview-capture/internal/transcriber"
	"github.com/hireloop/interview-capture/internal/video"
)

const (
	// teardownGrace is how long session tasks get to finish naturally after
	// the relays deliver their close sentinel.
	teardownGrace = 2 * time.Second
	// chunkLogInterval spaces out per-chunk progress logging.
	chunkLogInterval = 100
)

type Coordinator struct {
	interviews interview.Store
	registry   registry.Registry
	stt        transcriber.Transcriber
	media      media.Processor
	videoStore *video.Store
	jobs       *video.JobRunner
	publisher  events.Publisher
	metrics    *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// liveSession is the in-memory state for one connection's active session.
// The registry holds only its serializable shadow.
type liveSession struct {
	id          string
	interviewID string
	responseID  string
	emit        EmitFunc

	mu           sync.Mutex
	audio        *relay.Relay[transcriber.Frame]
	transcripts  *relay.Relay[transcriber.Event]
	writer       transcriber.StreamWriter
	cancel       context.CancelFunc
	tasks        sync.WaitGroup
	streamDone   chan struct{}
	doneOnce     *sync.Once
	encodingSet  bool
	encoding     transcriber.Encoding
	reconnecting bool
	reconnected  bool
	chunkCount   int
}

func NewCoordinator(
	interviews interview.Store,
	reg registry.Registry,
	stt transcriber.Transcriber,
	proc media.Processor,
	videoStore *video.Store,
	jobs *video.JobRunner,
	publisher events.Publisher,
	metrics *observability.Metrics,
) *Coordinator {
	return &Coordinator{
		interviews: interviews,
		registry:   reg,
		stt:        stt,
		media:      proc,
		videoStore: videoStore,
		jobs:       jobs,
		publisher:  publisher,
		metrics:    metrics,
		sessions:   make(map[string]*liveSession),
	}
}

// StartInterview validates the interview, replaces any prior session on the
// connection, registers the session, and brings up the streaming pipeline.
func (c *Coordinator) StartInterview(ctx context.Context, connID, interviewID, responseID string, emit EmitFunc) (*StartResult, error) {
	iv, err := c.interviews.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("look up interview: %w", err)
	}
	if iv == nil {
		return nil, ErrInterviewNotFound
	}
	if !iv.IsOpen() {
		return nil, ErrInterviewClosed
	}
	resp, err := c.interviews.GetResponse(ctx, responseID)
	if err != nil {
		return nil, fmt.Errorf("look up response: %w", err)
	}
	if resp != nil && resp.IsEnded {
		return nil, ErrResponseEnded
	}

	sessionID := interviewID + "_" + responseID

	c.mu.Lock()
	prior := c.sessions[connID]
	delete(c.sessions, connID)
	c.mu.Unlock()
	if prior != nil {
		slog.Info("replacing active session on connection",
			"conn_id", connID, "replaced_session_id", prior.id, "new_session_id", sessionID)
		c.finishSession(context.Background(), prior, "replaced")
	}

	if err := c.registry.CreateSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}
	meta := registry.SessionMeta{
		InterviewID: interviewID,
		ResponseID:  responseID,
		Token:       uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := c.registry.SetSessionMeta(ctx, sessionID, meta); err != nil {
		slog.Warn("failed to store session meta", "session_id", sessionID, "error", err)
	}

	ls := &liveSession{
		id:          sessionID,
		interviewID: interviewID,
		responseID:  responseID,
		emit:        emit,
	}
	if err := c.startStreaming(ls); err != nil {
		_ = c.registry.RemoveSession(context.Background(), sessionID)
		return nil, fmt.Errorf("start streaming transcription: %w", err)
	}

	c.mu.Lock()
	c.sessions[connID] = ls
	c.mu.Unlock()

	c.metrics.SessionsStarted.Inc()
	c.metrics.SessionsActive.Inc()
	slog.Info("session started", "session_id", sessionID, "conn_id", connID)
	return &StartResult{SessionID: sessionID, ResponseID: responseID}, nil
}

// startStreaming allocates fresh relays, opens the provider stream, and
// spawns the audio pump and transcript forwarder. Used at session start and
// once more on reconnect; ls.mu must not be held by the caller.
func (c *Coordinator) startStreaming(ls *liveSession) error {
	streamCtx, cancel := context.WithCancel(context.Background())

	receiver := &resultReceiver{session: ls}
	writer, err := c.stt.StartStreaming(streamCtx, ls.id, receiver)
	if err != nil {
		cancel()
		return err
	}

	ls.mu.Lock()
	ls.audio = relay.New[transcriber.Frame](relay.AudioCapacity)
	ls.transcripts = relay.New[transcriber.Event](relay.TranscriptCapacity)
	ls.writer = writer
	ls.cancel = cancel
	ls.streamDone = make(chan struct{})
	ls.doneOnce = &sync.Once{}
	audioRelay, transcriptRelay := ls.audio, ls.transcripts
	ls.mu.Unlock()

	ls.tasks.Add(2)
	go c.pumpAudio(streamCtx, ls, audioRelay, writer)
	go c.forwardTranscripts(streamCtx, ls, transcriptRelay)
	return nil
}

// pumpAudio drains the audio relay into the provider stream. The relay's
// close sentinel becomes a graceful half-close so the provider can flush
// final results.
func (c *Coordinator) pumpAudio(ctx context.Context, ls *liveSession, audio *relay.Relay[transcriber.Frame], writer transcriber.StreamWriter) {
	defer ls.tasks.Done()
	for {
		frame, ok, err := audio.Dequeue(ctx)
		if err != nil {
			slog.Info("audio pump cancelled", "session_id", ls.id, "reason", err.Error())
			ls.markStreamDone()
			return
		}
		if !ok {
			if err := writer.Close(); err != nil {
				slog.Warn("stream close failed", "session_id", ls.id, "error", err)
			}
			return
		}
		if err := writer.Write(frame); err != nil {
			slog.Error("audio frame write failed, streaming path terminated",
				"session_id", ls.id, "error", err)
			ls.markStreamDone()
			return
		}
	}
}

// forwardTranscripts drains the transcript relay to the client and the event
// publisher.
func (c *Coordinator) forwardTranscripts(ctx context.Context, ls *liveSession, transcripts *relay.Relay[transcriber.Event]) {
	defer ls.tasks.Done()
	for {
		ev, ok, err := transcripts.Dequeue(ctx)
		if err != nil || !ok {
			return
		}
		if ev.Err != nil {
			slog.Error("transcription stream error", "session_id", ls.id, "error", ev.Err)
			ls.emit("error", ErrorPayload{Error: ev.Err.Error()})
			continue
		}
		ls.emit("partial_transcript", TranscriptPayload{Text: ev.Text, IsFinal: ev.IsFinal})

		event := events.TranscriptEvent{
			InterviewID: ls.interviewID,
			ResponseID:  ls.responseID,
			SessionID:   ls.id,
			Text:        ev.Text,
		}
		if ev.IsFinal {
			c.metrics.TranscriptsFinal.Inc()
			if err := c.publisher.PublishFinal(ctx, event); err != nil {
				slog.Warn("final transcript publish failed", "session_id", ls.id, "error", err)
			}
		} else {
			c.metrics.TranscriptsPartial.Inc()
			if err := c.publisher.PublishPartial(ctx, event); err != nil {
				slog.Debug("partial transcript publish failed", "session_id", ls.id, "error", err)
			}
		}
	}
}

// HandleAudioChunk routes one audio chunk into the session pipeline. The
// original bytes are always buffered in the registry; what goes to the
// provider may be the extracted audio-only stream.
func (c *Coordinator) HandleAudioChunk(ctx context.Context, connID string, raw []byte) error {
	ls := c.lookup(connID)
	if ls == nil {
		return ErrNoActiveSession
	}
	if len(raw) == 0 {
		return ErrEmptyChunk
	}

	if ls.streamTerminated() {
		if err := c.reconnect(ls); err != nil {
			c.metrics.AudioChunksDropped.Inc()
			return err
		}
	}

	payload, encoding := c.resolveFrame(ctx, ls, raw)

	ls.mu.Lock()
	audio := ls.audio
	ls.chunkCount++
	count := ls.chunkCount
	ls.mu.Unlock()

	if count == 1 || count%chunkLogInterval == 0 {
		slog.Info("audio chunk progress", "session_id", ls.id, "chunks", count, "bytes", len(raw))
	}
	if depth := audio.Len(); depth >= relay.AudioWarnDepth {
		slog.Warn("audio relay backlog high", "session_id", ls.id, "depth", depth, "capacity", audio.Cap())
	}
	if err := audio.Enqueue(ctx, transcriber.Frame{Data: payload, Encoding: encoding}); err != nil {
		c.metrics.AudioChunksDropped.Inc()
		return fmt.Errorf("enqueue audio chunk: %w", err)
	}

	if err := c.registry.AppendAudioChunk(ctx, ls.id, raw); err != nil {
		return fmt.Errorf("buffer audio chunk: %w", err)
	}
	c.metrics.AudioChunksReceived.Inc()
	return nil
}

// resolveFrame decides what bytes and which encoding label go to the
// provider. Only header-carrying chunks are candidates for extraction; the
// first such chunk commits the session's encoding for its whole lifetime.
func (c *Coordinator) resolveFrame(ctx context.Context, ls *liveSession, raw []byte) ([]byte, transcriber.Encoding) {
	payload := raw
	if chunk.IsWebM(raw) {
		extracted, err := c.media.ExtractOpus(ctx, raw)
		if err != nil || len(extracted) == 0 {
			slog.Warn("audio extraction failed, forwarding container bytes",
				"session_id", ls.id, "error", err)
			ls.commitEncoding(transcriber.EncodingWebMOpus)
		} else {
			payload = extracted
			ls.commitEncoding(transcriber.EncodingOggOpus)
		}
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if !ls.encodingSet {
		// Headerless first chunk: nothing to extract from, treat the stream
		// as raw container bytes.
		ls.encodingSet = true
		ls.encoding = transcriber.EncodingWebMOpus
	}
	return payload, ls.encoding
}

// reconnect restarts the streaming pipeline under the same session id,
// exactly once per session. A chunk arriving while a reconnect is running is
// dropped with an explicit error rather than queued twice.
func (c *Coordinator) reconnect(ls *liveSession) error {
	ls.mu.Lock()
	if ls.reconnecting {
		ls.mu.Unlock()
		return ErrReconnecting
	}
	if ls.reconnected {
		ls.mu.Unlock()
		return ErrStreamUnavailable
	}
	ls.reconnecting = true
	ls.mu.Unlock()

	defer func() {
		ls.mu.Lock()
		ls.reconnecting = false
		ls.mu.Unlock()
	}()

	slog.Warn("streaming transcription terminated, restarting session stream", "session_id", ls.id)
	c.metrics.SessionReconnects.Inc()
	c.stopStreaming(ls)

	if err := c.startStreaming(ls); err != nil {
		ls.mu.Lock()
		ls.reconnected = true
		ls.mu.Unlock()
		slog.Error("stream restart failed", "session_id", ls.id, "error", err)
		return fmt.Errorf("%w: %v", ErrStreamUnavailable, err)
	}

	ls.mu.Lock()
	ls.reconnected = true
	ls.mu.Unlock()
	slog.Info("stream restarted", "session_id", ls.id)
	return nil
}

// stopStreaming tears down the current pipeline incarnation: close sentinel,
// grace period, forced cancellation, tasks awaited.
func (c *Coordinator) stopStreaming(ls *liveSession) {
	ls.mu.Lock()
	audio, transcripts, cancel := ls.audio, ls.transcripts, ls.cancel
	ls.mu.Unlock()

	audio.Close()
	transcripts.Close()

	done := make(chan struct{})
	go func() {
		ls.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(teardownGrace):
		slog.Warn("session tasks exceeded grace period, cancelling", "session_id", ls.id)
		cancel()
		<-done
	}
	cancel()
}

// EndInterview shuts the session down, produces the definitive full-session
// transcript, persists it, and schedules the video merge. The transcript is
// best effort: every failure downgrades to an empty transcript rather than
// failing the end call.
func (c *Coordinator) EndInterview(ctx context.Context, connID string) (*EndResult, error) {
	c.mu.Lock()
	ls := c.sessions[connID]
	delete(c.sessions, connID)
	c.mu.Unlock()
	if ls == nil {
		return nil, ErrNoActiveSession
	}
	transcript := c.finishSession(ctx, ls, "end_interview")
	return &EndResult{Transcript: transcript}, nil
}

// HandleDisconnect runs the same cleanup path as an explicit end.
func (c *Coordinator) HandleDisconnect(connID string) {
	c.mu.Lock()
	ls := c.sessions[connID]
	delete(c.sessions, connID)
	c.mu.Unlock()
	if ls == nil {
		return
	}
	slog.Info("connection dropped with active session", "conn_id", connID, "session_id", ls.id)
	c.finishSession(context.Background(), ls, "disconnect")
}

// finishSession is the single teardown path. It always releases registry
// keys and always schedules the merge, whatever triggered it.
func (c *Coordinator) finishSession(ctx context.Context, ls *liveSession, reason string) string {
	slog.Info("finishing session", "session_id", ls.id, "reason", reason)
	c.stopStreaming(ls)

	transcript := c.finalTranscript(ctx, ls)
	if transcript != "" {
		if err := c.publisher.PublishFinal(ctx, events.TranscriptEvent{
			InterviewID: ls.interviewID,
			ResponseID:  ls.responseID,
			SessionID:   ls.id,
			Text:        transcript,
		}); err != nil {
			slog.Warn("final event publish failed", "session_id", ls.id, "error", err)
		}
	}
	if err := c.interviews.FinalizeResponse(ctx, ls.responseID, transcript); err != nil {
		slog.Error("failed to finalize response", "session_id", ls.id, "error", err)
	}

	c.jobs.ScheduleMerge(ls.responseID)

	if err := c.registry.RemoveSession(context.Background(), ls.id); err != nil {
		slog.Warn("failed to release registry keys", "session_id", ls.id, "error", err)
	}
	c.metrics.SessionsActive.Dec()
	slog.Info("session finished", "session_id", ls.id, "reason", reason, "transcript_chars", len(transcript))
	return transcript
}

// finalTranscript merges the registry-buffered audio and runs the batch
// recognizer over it.
func (c *Coordinator) finalTranscript(ctx context.Context, ls *liveSession) string {
	chunks, err := c.registry.AudioChunks(ctx, ls.id)
	if err != nil {
		slog.Warn("failed to load buffered audio", "session_id", ls.id, "error", err)
		return ""
	}
	if len(chunks) == 0 {
		return ""
	}
	merged := bytes.Join(chunks, nil)

	wav, err := c.media.ConvertToWAV(ctx, merged)
	if err != nil {
		slog.Warn("final audio conversion failed", "session_id", ls.id, "error", err)
		return ""
	}
	transcript, err := c.stt.Transcribe(ctx, wav)
	if err != nil {
		slog.Warn("final transcription pass failed", "session_id", ls.id, "error", err)
		return ""
	}
	return transcript
}

// SaveVideoChunk decodes, validates, and stores one uploaded video fragment.
func (c *Coordinator) SaveVideoChunk(_ context.Context, req SaveVideoChunkRequest) (int, error) {
	if req.ResponseID == "" {
		return 0, fmt.Errorf("response_id is required")
	}
	encoded := req.Chunk
	if strings.HasPrefix(encoded, "data:") {
		if _, rest, found := strings.Cut(encoded, ","); found {
			encoded = rest
		}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return 0, fmt.Errorf("chunk is not valid base64: %w", err)
	}
	if err := chunk.ValidateVideoChunk(data); err != nil {
		return 0, err
	}
	index, err := c.videoStore.SaveChunk(req.ResponseID, data, req.FileExtension, req.ChunkIndex)
	if err != nil {
		return 0, fmt.Errorf("store video chunk: %w", err)
	}
	return index, nil
}

// TriggerMerge schedules the background merge for a response, for callers
// outside the session lifecycle (upload-complete notifications, reruns).
func (c *Coordinator) TriggerMerge(responseID string) {
	c.jobs.ScheduleMerge(responseID)
}

func (c *Coordinator) lookup(connID string) *liveSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[connID]
}

func (ls *liveSession) commitEncoding(enc transcriber.Encoding) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if !ls.encodingSet {
		ls.encodingSet = true
		ls.encoding = enc
	}
}

func (ls *liveSession) markStreamDone() {
	ls.mu.Lock()
	once, done := ls.doneOnce, ls.streamDone
	ls.mu.Unlock()
	once.Do(func() { close(done) })
}

func (ls *liveSession) streamTerminated() bool {
	ls.mu.Lock()
	done := ls.streamDone
	ls.mu.Unlock()
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// resultReceiver adapts provider callbacks onto the transcript relay.
type resultReceiver struct {
	session *liveSession
}

func (r *resultReceiver) OnResult(text string, isFinal bool) {
	r.enqueue(transcriber.Event{Text: text, IsFinal: isFinal})
}

func (r *resultReceiver) OnError(err error) {
	r.enqueue(transcriber.Event{Err: err, IsFinal: true})
	r.session.markStreamDone()
}

func (r *resultReceiver) enqueue(ev transcriber.Event) {
	r.session.mu.Lock()
	transcripts := r.session.transcripts
	r.session.mu.Unlock()
	if transcripts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := transcripts.Enqueue(ctx, ev); err != nil {
		slog.Debug("transcript event dropped", "session_id", r.session.id, "error", err)
	}
}

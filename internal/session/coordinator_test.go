package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hireloop/interview-capture/internal/chunk"
	"github.com/hireloop/interview-capture/internal/events"
	"github.com/hireloop/interview-capture/internal/interview"
	"github.com/hireloop/interview-capture/internal/observability"
	"github.com/hireloop/interview-capture/internal/registry"
	"github.com/hireloop/interview-capture/internal/transcriber"
	"github.com/hireloop/interview-capture/internal/video"
)

type fakeInterviewStore struct {
	mu         sync.Mutex
	interviews map[string]*interview.Interview
	responses  map[string]*interview.Response
	finalized  map[string]string
	videoURLs  map[string]string
}

func newFakeInterviewStore() *fakeInterviewStore {
	return &fakeInterviewStore{
		interviews: make(map[string]*interview.Interview),
		responses:  make(map[string]*interview.Response),
		finalized:  make(map[string]string),
		videoURLs:  make(map[string]string),
	}
}

func (s *fakeInterviewStore) GetInterview(_ context.Context, id string) (*interview.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interviews[id], nil
}

func (s *fakeInterviewStore) GetResponse(_ context.Context, id string) (*interview.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responses[id], nil
}

func (s *fakeInterviewStore) FinalizeResponse(_ context.Context, responseID, transcript string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized[responseID] = transcript
	return nil
}

func (s *fakeInterviewStore) SetVideoURL(_ context.Context, responseID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoURLs[responseID] = url
	return nil
}

func (s *fakeInterviewStore) videoURL(responseID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoURLs[responseID]
}

type fakeRegistry struct {
	mu     sync.Mutex
	chunks map[string][][]byte
	meta   map[string]registry.SessionMeta
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		chunks: make(map[string][][]byte),
		meta:   make(map[string]registry.SessionMeta),
	}
}

func (r *fakeRegistry) CreateSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[sessionID] = nil
	return nil
}

func (r *fakeRegistry) AppendAudioChunk(_ context.Context, sessionID string, chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	r.chunks[sessionID] = append(r.chunks[sessionID], buf)
	return nil
}

func (r *fakeRegistry) AudioChunks(_ context.Context, sessionID string) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks[sessionID], nil
}

func (r *fakeRegistry) SetSessionMeta(_ context.Context, sessionID string, meta registry.SessionMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta[sessionID] = meta
	return nil
}

func (r *fakeRegistry) GetSessionMeta(_ context.Context, sessionID string) (*registry.SessionMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meta[sessionID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *fakeRegistry) RemoveSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, sessionID)
	delete(r.meta, sessionID)
	return nil
}

func (r *fakeRegistry) has(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.chunks[sessionID]
	return ok
}

type fakeWriter struct {
	mu     sync.Mutex
	frames []transcriber.Frame
	closed bool
}

func (w *fakeWriter) Write(frame transcriber.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return io.ErrClosedPipe
	}
	w.frames = append(w.frames, frame)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) snapshot() []transcriber.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]transcriber.Frame(nil), w.frames...)
}

type fakeTranscriber struct {
	mu         sync.Mutex
	writers    []*fakeWriter
	receivers  []transcriber.ResultReceiver
	startErr   error
	transcript string
	// startGate, when set, blocks StartStreaming until the gate closes;
	// startBlocked receives a signal when a call is waiting on the gate.
	startGate    chan struct{}
	startBlocked chan struct{}
}

func (t *fakeTranscriber) StartStreaming(_ context.Context, _ string, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	t.mu.Lock()
	gate, blocked := t.startGate, t.startBlocked
	t.mu.Unlock()
	if gate != nil {
		if blocked != nil {
			blocked <- struct{}{}
		}
		<-gate
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startErr != nil {
		return nil, t.startErr
	}
	w := &fakeWriter{}
	t.writers = append(t.writers, w)
	t.receivers = append(t.receivers, receiver)
	return w, nil
}

func (t *fakeTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transcript, nil
}

func (t *fakeTranscriber) startCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writers)
}

func (t *fakeTranscriber) writer(i int) *fakeWriter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writers[i]
}

type fakeMedia struct {
	extractErr error
}

func (m *fakeMedia) ExtractOpus(_ context.Context, container []byte) ([]byte, error) {
	if m.extractErr != nil {
		return nil, m.extractErr
	}
	return append([]byte("OggS"), container...), nil
}

func (m *fakeMedia) Transcode(_ context.Context, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (m *fakeMedia) ProbeDuration(_ context.Context, _ string) (float64, error) { return 1.0, nil }

func (m *fakeMedia) ConvertToWAV(_ context.Context, audio []byte) ([]byte, error) {
	return audio, nil
}

type fakeBackend struct{}

func (fakeBackend) Put(_ context.Context, key string, r io.Reader, _ int64) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return "/api/media/files/videos/" + key, nil
}

func (fakeBackend) Exists(_ context.Context, _ string) (bool, error) { return false, nil }
func (fakeBackend) URL(key string) string                            { return "/api/media/files/videos/" + key }
func (fakeBackend) IsLocal() bool                                    { return true }

type fakePublisher struct {
	mu      sync.Mutex
	partial []events.TranscriptEvent
	final   []events.TranscriptEvent
}

func (p *fakePublisher) PublishPartial(_ context.Context, event events.TranscriptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.partial = append(p.partial, event)
	return nil
}

func (p *fakePublisher) PublishFinal(_ context.Context, event events.TranscriptEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.final = append(p.final, event)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type emitRecorder struct {
	mu     sync.Mutex
	events []string
}

func (e *emitRecorder) emit(event string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

type coordinatorFixture struct {
	coordinator *Coordinator
	interviews  *fakeInterviewStore
	registry    *fakeRegistry
	stt         *fakeTranscriber
	media       *fakeMedia
	publisher   *fakePublisher
	emitted     *emitRecorder
}

func newFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	interviews := newFakeInterviewStore()
	interviews.interviews["iv-1"] = &interview.Interview{ID: "iv-1", IsActive: true}
	interviews.interviews["iv-closed"] = &interview.Interview{ID: "iv-closed", IsActive: false}
	interviews.responses["resp-ended"] = &interview.Response{ID: "resp-ended", InterviewID: "iv-1", IsEnded: true}

	reg := newFakeRegistry()
	stt := &fakeTranscriber{transcript: "final transcript"}
	proc := &fakeMedia{}
	publisher := &fakePublisher{}

	videoStore := video.NewStore(t.TempDir(), metrics)
	merger := video.NewMerger(videoStore, proc, fakeBackend{}, metrics)
	jobs := video.NewJobRunner(merger, interviews, metrics)

	return &coordinatorFixture{
		coordinator: NewCoordinator(interviews, reg, stt, proc, videoStore, jobs, publisher, metrics),
		interviews:  interviews,
		registry:    reg,
		stt:         stt,
		media:       proc,
		publisher:   publisher,
		emitted:     &emitRecorder{},
	}
}

func (f *coordinatorFixture) start(t *testing.T, connID string) *StartResult {
	t.Helper()
	res, err := f.coordinator.StartInterview(context.Background(), connID, "iv-1", "resp-1", f.emitted.emit)
	if err != nil {
		t.Fatalf("StartInterview failed: %v", err)
	}
	return res
}

func webmChunk(size int) []byte {
	data := bytes.Repeat([]byte{0x42}, size)
	copy(data, []byte{0x1a, 0x45, 0xdf, 0xa3})
	return data
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartInterview(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "conn-1")

	if res.SessionID != "iv-1_resp-1" {
		t.Fatalf("unexpected session id %q", res.SessionID)
	}
	if !f.registry.has("iv-1_resp-1") {
		t.Fatal("expected registry entry for session")
	}
	meta, err := f.registry.GetSessionMeta(context.Background(), "iv-1_resp-1")
	if err != nil || meta == nil {
		t.Fatalf("expected session meta, got %v, %v", meta, err)
	}
	if meta.Token == "" {
		t.Fatal("expected one-time token in session meta")
	}
}

func TestStartInterviewUnknownInterview(t *testing.T) {
	f := newFixture(t)
	_, err := f.coordinator.StartInterview(context.Background(), "conn-1", "missing", "resp-1", f.emitted.emit)
	if !errors.Is(err, ErrInterviewNotFound) {
		t.Fatalf("expected ErrInterviewNotFound, got %v", err)
	}
}

func TestStartInterviewClosedInterview(t *testing.T) {
	f := newFixture(t)
	_, err := f.coordinator.StartInterview(context.Background(), "conn-1", "iv-closed", "resp-1", f.emitted.emit)
	if !errors.Is(err, ErrInterviewClosed) {
		t.Fatalf("expected ErrInterviewClosed, got %v", err)
	}
}

func TestStartInterviewEndedResponse(t *testing.T) {
	f := newFixture(t)
	_, err := f.coordinator.StartInterview(context.Background(), "conn-1", "iv-1", "resp-ended", f.emitted.emit)
	if !errors.Is(err, ErrResponseEnded) {
		t.Fatalf("expected ErrResponseEnded, got %v", err)
	}
	if f.registry.has("iv-1_resp-ended") {
		t.Fatal("expected no registry entry for a rejected start")
	}
}

func TestStartInterviewStreamFailure(t *testing.T) {
	f := newFixture(t)
	f.stt.startErr = errors.New("provider down")

	_, err := f.coordinator.StartInterview(context.Background(), "conn-1", "iv-1", "resp-1", f.emitted.emit)
	if err == nil {
		t.Fatal("expected start failure when the stream cannot be established")
	}
	if f.registry.has("iv-1_resp-1") {
		t.Fatal("expected registry entry released after start failure")
	}
}

func TestStartInterviewReplacesPriorSession(t *testing.T) {
	f := newFixture(t)
	f.start(t, "conn-1")
	res, err := f.coordinator.StartInterview(context.Background(), "conn-1", "iv-1", "resp-2", f.emitted.emit)
	if err != nil {
		t.Fatalf("second StartInterview failed: %v", err)
	}
	if res.SessionID != "iv-1_resp-2" {
		t.Fatalf("unexpected session id %q", res.SessionID)
	}
	if f.registry.has("iv-1_resp-1") {
		t.Fatal("expected prior session's registry entry released")
	}
}

func TestHandleAudioChunkWithoutSession(t *testing.T) {
	f := newFixture(t)
	err := f.coordinator.HandleAudioChunk(context.Background(), "conn-1", []byte("audio"))
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestHandleAudioChunkEmpty(t *testing.T) {
	f := newFixture(t)
	f.start(t, "conn-1")
	if err := f.coordinator.HandleAudioChunk(context.Background(), "conn-1", nil); !errors.Is(err, ErrEmptyChunk) {
		t.Fatalf("expected ErrEmptyChunk, got %v", err)
	}
}

func TestHandleAudioChunkExtractionCommitsEncoding(t *testing.T) {
	f := newFixture(t)
	f.start(t, "conn-1")

	header := webmChunk(128)
	if err := f.coordinator.HandleAudioChunk(context.Background(), "conn-1", header); err != nil {
		t.Fatalf("HandleAudioChunk failed: %v", err)
	}
	continuation := bytes.Repeat([]byte{0x07}, 64)
	if err := f.coordinator.HandleAudioChunk(context.Background(), "conn-1", continuation); err != nil {
		t.Fatalf("HandleAudioChunk failed: %v", err)
	}

	w := f.stt.writer(0)
	waitFor(t, func() bool { return len(w.snapshot()) == 2 }, "frames never reached the stream writer")

	frames := w.snapshot()
	if frames[0].Encoding != transcriber.EncodingOggOpus {
		t.Fatalf("expected extracted first frame, got encoding %q", frames[0].Encoding)
	}
	if !bytes.HasPrefix(frames[0].Data, []byte("OggS")) {
		t.Fatal("expected first frame to carry extracted bytes")
	}
	if frames[1].Encoding != transcriber.EncodingOggOpus {
		t.Fatalf("expected committed encoding on later frames, got %q", frames[1].Encoding)
	}
	if !bytes.Equal(frames[1].Data, continuation) {
		t.Fatal("expected headerless continuation forwarded unchanged")
	}

	buffered, _ := f.registry.AudioChunks(context.Background(), "iv-1_resp-1")
	if len(buffered) != 2 || !bytes.Equal(buffered[0], header) {
		t.Fatal("expected original bytes buffered in the registry")
	}
}

func TestHandleAudioChunkExtractionFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	f.media.extractErr = errors.New("no audio stream")
	f.start(t, "conn-1")

	header := webmChunk(128)
	if err := f.coordinator.HandleAudioChunk(context.Background(), "conn-1", header); err != nil {
		t.Fatalf("HandleAudioChunk failed: %v", err)
	}

	w := f.stt.writer(0)
	waitFor(t, func() bool { return len(w.snapshot()) == 1 }, "frame never reached the stream writer")
	frame := w.snapshot()[0]
	if frame.Encoding != transcriber.EncodingWebMOpus {
		t.Fatalf("expected container fallback encoding, got %q", frame.Encoding)
	}
	if !bytes.Equal(frame.Data, header) {
		t.Fatal("expected original container bytes forwarded")
	}
}

func TestReconnectOnce(t *testing.T) {
	f := newFixture(t)
	f.start(t, "conn-1")

	ls := f.coordinator.lookup("conn-1")
	ls.markStreamDone()

	if err := f.coordinator.HandleAudioChunk(context.Background(), "conn-1", webmChunk(128)); err != nil {
		t.Fatalf("expected transparent reconnect, got %v", err)
	}
	if got := f.stt.startCalls(); got != 2 {
		t.Fatalf("expected exactly one restart (2 stream starts), got %d", got)
	}

	// A second termination finds the reconnect budget spent.
	ls.markStreamDone()
	err := f.coordinator.HandleAudioChunk(context.Background(), "conn-1", webmChunk(128))
	if !errors.Is(err, ErrStreamUnavailable) {
		t.Fatalf("expected ErrStreamUnavailable, got %v", err)
	}
	if got := f.stt.startCalls(); got != 2 {
		t.Fatalf("expected no further restarts, got %d", got)
	}
}

func TestReconnectDropsOverlappingChunk(t *testing.T) {
	f := newFixture(t)
	f.start(t, "conn-1")

	gate := make(chan struct{})
	blocked := make(chan struct{}, 1)
	f.stt.mu.Lock()
	f.stt.startGate = gate
	f.stt.startBlocked = blocked
	f.stt.mu.Unlock()

	ls := f.coordinator.lookup("conn-1")
	ls.markStreamDone()

	first := webmChunk(128)
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.coordinator.HandleAudioChunk(context.Background(), "conn-1", first)
	}()

	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never reached the provider")
	}

	// A chunk arriving mid-reconnect is dropped, not queued behind the restart.
	err := f.coordinator.HandleAudioChunk(context.Background(), "conn-1", webmChunk(64))
	if !errors.Is(err, ErrReconnecting) {
		t.Fatalf("expected ErrReconnecting for the overlapping chunk, got %v", err)
	}

	close(gate)
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected the triggering chunk to ride the restarted stream, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never completed")
	}

	if got := f.stt.startCalls(); got != 2 {
		t.Fatalf("expected exactly one restart (2 stream starts), got %d", got)
	}
	w := f.stt.writer(1)
	waitFor(t, func() bool { return len(w.snapshot()) == 1 }, "triggering chunk never reached the restarted stream")
}

func TestTranscriptForwarding(t *testing.T) {
	f := newFixture(t)
	f.start(t, "conn-1")

	f.stt.receivers[0].OnResult("hello", false)
	f.stt.receivers[0].OnResult("hello world", true)

	waitFor(t, func() bool {
		f.emitted.mu.Lock()
		defer f.emitted.mu.Unlock()
		return len(f.emitted.events) == 2
	}, "transcript events never reached the client")

	f.publisher.mu.Lock()
	partial, final := len(f.publisher.partial), len(f.publisher.final)
	f.publisher.mu.Unlock()
	if partial != 1 || final != 1 {
		t.Fatalf("expected 1 partial and 1 final event published, got %d and %d", partial, final)
	}
}

func TestEndInterview(t *testing.T) {
	f := newFixture(t)
	f.start(t, "conn-1")

	if err := f.coordinator.HandleAudioChunk(context.Background(), "conn-1", webmChunk(128)); err != nil {
		t.Fatalf("HandleAudioChunk failed: %v", err)
	}

	res, err := f.coordinator.EndInterview(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("EndInterview failed: %v", err)
	}
	if res.Transcript != "final transcript" {
		t.Fatalf("unexpected transcript %q", res.Transcript)
	}
	if f.registry.has("iv-1_resp-1") {
		t.Fatal("expected registry keys released")
	}
	f.interviews.mu.Lock()
	finalized, ok := f.interviews.finalized["resp-1"]
	f.interviews.mu.Unlock()
	if !ok || finalized != "final transcript" {
		t.Fatalf("expected finalized response transcript, got %q (present: %v)", finalized, ok)
	}

	if _, err := f.coordinator.EndInterview(context.Background(), "conn-1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession on double end, got %v", err)
	}
}

func TestEndInterviewWithoutAudio(t *testing.T) {
	f := newFixture(t)
	f.start(t, "conn-1")

	res, err := f.coordinator.EndInterview(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("EndInterview failed: %v", err)
	}
	if res.Transcript != "" {
		t.Fatalf("expected empty transcript without audio, got %q", res.Transcript)
	}
}

func TestHandleDisconnectCleansUp(t *testing.T) {
	f := newFixture(t)
	f.start(t, "conn-1")

	f.coordinator.HandleDisconnect("conn-1")

	if f.registry.has("iv-1_resp-1") {
		t.Fatal("expected registry keys released on disconnect")
	}
	if err := f.coordinator.HandleAudioChunk(context.Background(), "conn-1", webmChunk(128)); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected session removed, got %v", err)
	}
}

func TestSaveVideoChunk(t *testing.T) {
	f := newFixture(t)
	data := webmChunk(256)

	index, err := f.coordinator.SaveVideoChunk(context.Background(), SaveVideoChunkRequest{
		ResponseID:    "resp-1",
		Chunk:         base64.StdEncoding.EncodeToString(data),
		FileExtension: "webm",
		ChunkIndex:    -1,
	})
	if err != nil {
		t.Fatalf("SaveVideoChunk failed: %v", err)
	}
	if index != 0 {
		t.Fatalf("expected index 0, got %d", index)
	}
}

func TestSaveVideoChunkDataURL(t *testing.T) {
	f := newFixture(t)
	data := webmChunk(256)
	encoded := "data:video/webm;base64," + base64.StdEncoding.EncodeToString(data)

	index, err := f.coordinator.SaveVideoChunk(context.Background(), SaveVideoChunkRequest{
		ResponseID:    "resp-1",
		Chunk:         encoded,
		FileExtension: "webm",
		ChunkIndex:    1,
	})
	if err != nil {
		t.Fatalf("SaveVideoChunk failed: %v", err)
	}
	if index != 1 {
		t.Fatalf("expected index 1, got %d", index)
	}
}

func TestTriggerMergeDeliversOutsideSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		if _, err := f.coordinator.SaveVideoChunk(context.Background(), SaveVideoChunkRequest{
			ResponseID:    "resp-1",
			Chunk:         base64.StdEncoding.EncodeToString(webmChunk(4096)),
			FileExtension: "webm",
			ChunkIndex:    -1,
		}); err != nil {
			t.Fatalf("SaveVideoChunk failed: %v", err)
		}
	}

	f.coordinator.TriggerMerge("resp-1")

	waitFor(t, func() bool { return f.interviews.videoURL("resp-1") != "" },
		"merge never recorded a video url")
	if url := f.interviews.videoURL("resp-1"); url != "/api/media/files/videos/resp-1.mp4" {
		t.Fatalf("unexpected video url %q", url)
	}
}

func TestSaveVideoChunkRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	if _, err := f.coordinator.SaveVideoChunk(context.Background(), SaveVideoChunkRequest{
		ResponseID: "resp-1",
		Chunk:      "not-base64!!!",
	}); err == nil {
		t.Fatal("expected error for invalid base64")
	}

	tiny := base64.StdEncoding.EncodeToString([]byte("tiny"))
	_, err := f.coordinator.SaveVideoChunk(context.Background(), SaveVideoChunkRequest{
		ResponseID: "resp-1",
		Chunk:      tiny,
	})
	if !errors.Is(err, chunk.ErrChunkTooSmall) {
		t.Fatalf("expected ErrChunkTooSmall, got %v", err)
	}
}

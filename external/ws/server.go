// Package ws is the realtime channel between interview clients and the
// session coordinator. Control traffic is JSON envelopes over text frames;
// raw binary frames are audio chunks.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hireloop/interview-capture/internal/session"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 16 << 20
)

// envelope is the JSON wire format for control events in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type startInterviewData struct {
	InterviewID string `json:"interview_id"`
	ResponseID  string `json:"response_id"`
}

// audioChunkData is the wrapped form of an audio chunk. Clients may also
// send the bytes as a raw binary frame; both shapes resolve to the same
// coordinator call at ingress.
type audioChunkData struct {
	ChunkData string `json:"chunk_data"`
}

type mergeVideoChunksData struct {
	ResponseID string `json:"response_id"`
}

type saveVideoChunkData struct {
	ResponseID    string `json:"response_id"`
	Chunk         string `json:"chunk"`
	FileExtension string `json:"file_extension"`
	ChunkIndex    *int   `json:"chunk_index"`
}

type ackPayload struct {
	OK         bool    `json:"ok"`
	SessionID  string  `json:"session_id,omitempty"`
	ResponseID string  `json:"response_id,omitempty"`
	Final      bool    `json:"final,omitempty"`
	Transcript *string `json:"transcript,omitempty"`
	Index      *int    `json:"index,omitempty"`
	Error      string  `json:"error,omitempty"`
	Code       string  `json:"code,omitempty"`
}

type Server struct {
	coordinator *session.Coordinator
	upgrader    websocket.Upgrader
	srv         *http.Server

	mu    sync.Mutex
	conns map[string]*clientConn
}

type ServerConfig struct {
	ListenAddr string
	// VideoRoot, when non-empty, is served read-only under the local media
	// URL prefix. Object-store deployments leave it empty.
	VideoRoot string
}

func NewServer(cfg ServerConfig, coordinator *session.Coordinator) *Server {
	s := &Server{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*clientConn),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	if cfg.VideoRoot != "" {
		mux.Handle("/api/media/files/videos/",
			http.StripPrefix("/api/media/files/videos/", http.FileServer(http.Dir(cfg.VideoRoot))))
	}
	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	slog.Info("realtime server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes the live ones so their
// read loops run the disconnect cleanup path.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.sock.Close()
	}
	s.mu.Unlock()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := &clientConn{id: uuid.NewString(), sock: sock}
	sock.SetReadLimit(maxMessageSize)

	s.mu.Lock()
	s.conns[conn.id] = conn
	s.mu.Unlock()

	slog.Info("client connected", "conn_id", conn.id, "remote", r.RemoteAddr)
	s.readLoop(conn)
}

func (s *Server) readLoop(conn *clientConn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn.id)
		s.mu.Unlock()
		_ = conn.sock.Close()
		s.coordinator.HandleDisconnect(conn.id)
		slog.Info("client disconnected", "conn_id", conn.id)
	}()

	for {
		msgType, payload, err := conn.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", "conn_id", conn.id, "error", err)
			}
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			s.handleAudioChunk(conn, payload)
		case websocket.TextMessage:
			s.dispatch(conn, payload)
		}
	}
}

func (s *Server) dispatch(conn *clientConn, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		conn.emit("error", session.ErrorPayload{Error: "malformed event envelope"})
		return
	}

	switch env.Event {
	case "start_interview":
		s.handleStartInterview(conn, env.Data)
	case "send_audio_chunk":
		var data audioChunkData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.ChunkData == "" {
			conn.emit("send_audio_chunk", ackPayload{OK: false, Error: "chunk_data is required"})
			return
		}
		raw, err := base64.StdEncoding.DecodeString(data.ChunkData)
		if err != nil {
			conn.emit("send_audio_chunk", ackPayload{OK: false, Error: "chunk_data is not valid base64"})
			return
		}
		s.handleAudioChunk(conn, raw)
	case "end_interview":
		s.handleEndInterview(conn)
	case "save_video_chunk":
		s.handleSaveVideoChunk(conn, env.Data)
	case "merge_video_chunks":
		s.handleMergeVideoChunks(conn, env.Data)
	default:
		slog.Debug("ignoring unknown event", "conn_id", conn.id, "event", env.Event)
	}
}

func (s *Server) handleStartInterview(conn *clientConn, data json.RawMessage) {
	var req startInterviewData
	if err := json.Unmarshal(data, &req); err != nil || req.InterviewID == "" || req.ResponseID == "" {
		conn.emit("start_interview", ackPayload{OK: false, Error: "interview_id and response_id are required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := s.coordinator.StartInterview(ctx, conn.id, req.InterviewID, req.ResponseID, conn.emit)
	if err != nil {
		conn.emit("start_interview", ackPayload{OK: false, Error: err.Error(), Code: startErrorCode(err)})
		return
	}
	conn.emit("start_interview", ackPayload{OK: true, SessionID: res.SessionID, ResponseID: res.ResponseID})
}

func (s *Server) handleAudioChunk(conn *clientConn, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.coordinator.HandleAudioChunk(ctx, conn.id, raw); err != nil {
		conn.emit("send_audio_chunk", ackPayload{OK: false, Error: err.Error()})
		return
	}
	conn.emit("send_audio_chunk", ackPayload{OK: true})
}

func (s *Server) handleEndInterview(conn *clientConn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	res, err := s.coordinator.EndInterview(ctx, conn.id)
	if err != nil {
		conn.emit("end_interview", ackPayload{OK: false, Error: err.Error()})
		return
	}
	conn.emit("end_interview", ackPayload{OK: true, Final: true, Transcript: &res.Transcript})
}

func (s *Server) handleSaveVideoChunk(conn *clientConn, data json.RawMessage) {
	var req saveVideoChunkData
	if err := json.Unmarshal(data, &req); err != nil {
		conn.emit("error", session.ErrorPayload{Error: "malformed save_video_chunk payload"})
		return
	}
	index := -1
	if req.ChunkIndex != nil {
		index = *req.ChunkIndex
	}
	savedIndex, err := s.coordinator.SaveVideoChunk(context.Background(), session.SaveVideoChunkRequest{
		ResponseID:    req.ResponseID,
		Chunk:         req.Chunk,
		FileExtension: req.FileExtension,
		ChunkIndex:    index,
	})
	if err != nil {
		conn.emit("error", session.ErrorPayload{Error: err.Error()})
		return
	}
	conn.emit("video_chunk_saved", ackPayload{OK: true, Index: &savedIndex})
}

// handleMergeVideoChunks lets a client request the merge for a response whose
// chunks were uploaded outside a live session, or rerun one that failed.
func (s *Server) handleMergeVideoChunks(conn *clientConn, data json.RawMessage) {
	var req mergeVideoChunksData
	if err := json.Unmarshal(data, &req); err != nil || req.ResponseID == "" {
		conn.emit("merge_video_chunks", ackPayload{OK: false, Error: "response_id is required"})
		return
	}
	s.coordinator.TriggerMerge(req.ResponseID)
	conn.emit("merge_video_chunks", ackPayload{OK: true, ResponseID: req.ResponseID})
}

func startErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrInterviewNotFound):
		return "not_found"
	case errors.Is(err, session.ErrInterviewClosed), errors.Is(err, session.ErrResponseEnded):
		return "forbidden"
	default:
		return "internal"
	}
}

// clientConn serializes writes; gorilla/websocket allows one concurrent
// writer only.
type clientConn struct {
	id      string
	sock    *websocket.Conn
	writeMu sync.Mutex
}

func (c *clientConn) emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal event payload", "conn_id", c.id, "event", event, "error", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.sock.WriteJSON(envelope{Event: event, Data: data}); err != nil {
		slog.Warn("event write failed", "conn_id", c.id, "event", event, "error", err)
	}
}

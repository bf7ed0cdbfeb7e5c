package session

// EmitFunc pushes a server-originated event to the session's client
// connection. Implementations must be safe for concurrent use.
type EmitFunc func(event string, payload any)

type StartResult struct {
	SessionID  string `json:"session_id"`
	ResponseID string `json:"response_id"`
}

type EndResult struct {
	Transcript string `json:"transcript"`
}

type TranscriptPayload struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// SaveVideoChunkRequest carries one uploaded video fragment. Chunk is
// base64, optionally wrapped in a browser data URL. ChunkIndex below zero
// means append at the next free slot.
type SaveVideoChunkRequest struct {
	ResponseID    string
	Chunk         string
	FileExtension string
	ChunkIndex    int
}

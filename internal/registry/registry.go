// Package registry defines the ephemeral session store. It holds a
// serializable snapshot of session metadata and the buffered audio chunks
// used for the final full-session transcription pass. Entries are TTL-backed
// and survive worker restarts, but are not long-term storage.
package registry

import (
	"context"
	"time"
)

// SessionTTL bounds how long registry entries outlive an interview.
const SessionTTL = 2 * time.Hour

// SessionMeta is the serializable snapshot of a session. Live handles
// (relays, stream writers) never enter the registry.
type SessionMeta struct {
	InterviewID string
	ResponseID  string
	Token       string
	CreatedAt   time.Time
}

type Registry interface {
	// CreateSession resets any stale chunk buffer left under the session id.
	CreateSession(ctx context.Context, sessionID string) error
	// AppendAudioChunk stores the original (pre-extraction) chunk bytes and
	// refreshes the TTL.
	AppendAudioChunk(ctx context.Context, sessionID string, chunk []byte) error
	// AudioChunks returns all buffered chunks in arrival order.
	AudioChunks(ctx context.Context, sessionID string) ([][]byte, error)
	SetSessionMeta(ctx context.Context, sessionID string, meta SessionMeta) error
	GetSessionMeta(ctx context.Context, sessionID string) (*SessionMeta, error)
	// RemoveSession deletes both the chunk buffer and the metadata snapshot.
	RemoveSession(ctx context.Context, sessionID string) error
}

package session

import "errors"

var (
	ErrNoActiveSession   = errors.New("no active session for this connection")
	ErrEmptyChunk        = errors.New("empty audio chunk")
	ErrReconnecting      = errors.New("reconnection in progress, chunk dropped")
	ErrStreamUnavailable = errors.New("streaming transcription unavailable")
	ErrInterviewNotFound = errors.New("interview not found")
	ErrInterviewClosed   = errors.New("interview is not accepting responses")
	ErrResponseEnded     = errors.New("response has already ended")
)

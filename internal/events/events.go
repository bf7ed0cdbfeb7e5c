// Package events defines downstream transcript event publishing.
package events

import (
	"context"
	"time"
)

// TranscriptEvent is the payload written for every transcript update.
type TranscriptEvent struct {
	EventType   string    `json:"eventType"`
	InterviewID string    `json:"interviewId"`
	ResponseID  string    `json:"responseId"`
	SessionID   string    `json:"sessionId"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher fans transcript updates out to downstream consumers. Publishing
// is best effort; callers never fail a session over a publish error.
type Publisher interface {
	PublishPartial(ctx context.Context, event TranscriptEvent) error
	PublishFinal(ctx context.Context, event TranscriptEvent) error
	Close() error
}

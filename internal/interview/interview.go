// Package interview defines the boundary to the interview collaborator
// records that capture sessions attach to.
package interview

import (
	"context"
	"time"
)

type Interview struct {
	ID         string
	OrgID      string
	Name       string
	IsActive   bool
	IsArchived bool
	CreatedAt  time.Time
}

// IsOpen reports whether the interview still accepts capture sessions.
func (i *Interview) IsOpen() bool {
	return i.IsActive && !i.IsArchived
}

type Response struct {
	ID           string
	InterviewID  string
	Transcript   string
	RecordingURL string
	IsEnded      bool
	CreatedAt    time.Time
	EndedAt      *time.Time
}

type Store interface {
	GetInterview(ctx context.Context, id string) (*Interview, error)
	GetResponse(ctx context.Context, id string) (*Response, error)
	// FinalizeResponse appends the definitive transcript and marks the
	// response ended. Appending keeps transcript text from earlier partial
	// finalizations instead of overwriting it.
	FinalizeResponse(ctx context.Context, responseID, transcript string) error
	// SetVideoURL records the delivered artifact location. Callers treat
	// failures as log-and-continue; the artifact itself is already durable.
	SetVideoURL(ctx context.Context, responseID, url string) error
}

package interview

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hireloop/interview-capture/internal/interview"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) interview.Store {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetInterview(ctx context.Context, id string) (*interview.Interview, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, org_id, name, is_active, is_archived, created_at
		 FROM interviews WHERE id = $1`,
		id)
	var iv interview.Interview
	err := row.Scan(&iv.ID, &iv.OrgID, &iv.Name, &iv.IsActive, &iv.IsArchived, &iv.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &iv, nil
}

func (s *PostgresStore) GetResponse(ctx context.Context, id string) (*interview.Response, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, interview_id, COALESCE(transcript, ''), COALESCE(recording_url, ''), is_ended, created_at, ended_at
		 FROM responses WHERE id = $1`,
		id)
	var r interview.Response
	var endedAt *time.Time
	err := row.Scan(&r.ID, &r.InterviewID, &r.Transcript, &r.RecordingURL, &r.IsEnded, &r.CreatedAt, &endedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	r.EndedAt = endedAt
	return &r, nil
}

func (s *PostgresStore) FinalizeResponse(ctx context.Context, responseID, transcript string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE responses
		 SET transcript = TRIM(COALESCE(transcript, '') || ' ' || $2),
		     is_ended = TRUE,
		     ended_at = NOW()
		 WHERE id = $1`,
		responseID, transcript)
	return err
}

func (s *PostgresStore) SetVideoURL(ctx context.Context, responseID, url string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE responses SET recording_url = $2 WHERE id = $1`,
		responseID, url)
	return err
}

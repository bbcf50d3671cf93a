package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AIRepository struct {
	db *pgxpool.Pool
}

type AIRequestLog struct {
	HouseholdID  uuid.UUID
	UserID       uuid.UUID
	TraceID      string
	Model        string
	Intent       string
	Prompt       string
	RawResponse  string
	Success      bool
	FailureStage *string
	ErrorMessage *string
}

// NewAIRepository создает репозиторий для AI-запросов.
func NewAIRepository(db *pgxpool.Pool) *AIRepository {
	return &AIRepository{db: db}
}

// LogRequest сохраняет лог AI-запроса.
func (r *AIRepository) LogRequest(ctx context.Context, log AIRequestLog) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_requests
		 (household_id, user_id, trace_id, model, intent, prompt, raw_response, success, failure_stage, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		log.HouseholdID,
		log.UserID,
		log.TraceID,
		log.Model,
		log.Intent,
		log.Prompt,
		log.RawResponse,
		log.Success,
		log.FailureStage,
		log.ErrorMessage,
	)
	return err
}

package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/pod-budget-chat/backend/internal/models"
)

type ActionRepository struct {
	db *pgxpool.Pool
}

// NewActionRepository создает репозиторий предложенных действий.
func NewActionRepository(db *pgxpool.Pool) *ActionRepository {
	return &ActionRepository{db: db}
}

// InsertBatch сохраняет черновики действий для сообщения в статусе proposed.
func (r *ActionRepository) InsertBatch(ctx context.Context, householdID, messageID uuid.UUID, drafts []models.ProposedActionDraft) ([]models.ProposedAction, error) {
	actions := make([]models.ProposedAction, 0, len(drafts))
	if len(drafts) == 0 {
		return actions, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, draft := range drafts {
		payload, err := json.Marshal(draft.Payload)
		if err != nil {
			return nil, err
		}

		var action models.ProposedAction
		var rawPayload []byte

		err = tx.QueryRow(ctx,
			`INSERT INTO proposed_actions (id, household_id, message_id, type, payload, status)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, household_id, message_id, type, payload, status, applied_at, applied_by, created_at`,
			uuid.New(), householdID, messageID, draft.Type, payload, models.ActionStatusProposed,
		).Scan(&action.ID, &action.HouseholdID, &action.MessageID, &action.Type, &rawPayload, &action.Status, &action.AppliedAt, &action.AppliedBy, &action.CreatedAt)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(rawPayload, &action.Payload); err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return actions, nil
}

// ListByIDs возвращает действия домохозяйства по списку идентификаторов.
func (r *ActionRepository) ListByIDs(ctx context.Context, householdID uuid.UUID, actionIDs []uuid.UUID) ([]models.ProposedAction, error) {
	if len(actionIDs) == 0 {
		return []models.ProposedAction{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, household_id, message_id, type, payload, status, applied_at, applied_by, created_at
		 FROM proposed_actions
		 WHERE household_id = $1 AND id = ANY($2)`,
		householdID, actionIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := make([]models.ProposedAction, 0, len(actionIDs))
	for rows.Next() {
		var action models.ProposedAction
		var rawPayload []byte

		err := rows.Scan(&action.ID, &action.HouseholdID, &action.MessageID, &action.Type, &rawPayload, &action.Status, &action.AppliedAt, &action.AppliedBy, &action.CreatedAt)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(rawPayload, &action.Payload); err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return actions, nil
}

// MarkApplied переводит действия в статус applied с отметкой времени и автора.
func (r *ActionRepository) MarkApplied(ctx context.Context, actionIDs []uuid.UUID, appliedBy uuid.UUID, appliedAt time.Time) error {
	if len(actionIDs) == 0 {
		return nil
	}

	cmd, err := r.db.Exec(ctx,
		`UPDATE proposed_actions
		 SET status = $2, applied_at = $3, applied_by = $4
		 WHERE id = ANY($1) AND status = $5`,
		actionIDs, models.ActionStatusApplied, appliedAt, appliedBy, models.ActionStatusProposed,
	)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() != int64(len(actionIDs)) {
		return ErrConflict
	}

	return nil
}

// MarkFailed переводит действия в статус failed.
func (r *ActionRepository) MarkFailed(ctx context.Context, actionIDs []uuid.UUID) error {
	if len(actionIDs) == 0 {
		return nil
	}

	_, err := r.db.Exec(ctx,
		`UPDATE proposed_actions
		 SET status = $2
		 WHERE id = ANY($1) AND status = $3`,
		actionIDs, models.ActionStatusFailed, models.ActionStatusProposed,
	)
	return err
}

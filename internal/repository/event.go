package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/pod-budget-chat/backend/internal/models"
)

type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository создает репозиторий событий бюджета.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// InsertObservedTransfer записывает событие уже совершенного перевода.
func (r *EventRepository) InsertObservedTransfer(ctx context.Context, householdID uuid.UUID, actorUserID *uuid.UUID, event models.ObservedTransferEvent) (models.BudgetEvent, error) {
	var record models.BudgetEvent

	payload, err := json.Marshal(event)
	if err != nil {
		return record, err
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO budget_events (id, household_id, actor_user_id, type, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, household_id, actor_user_id, type, payload, created_at`,
		uuid.New(), householdID, actorUserID, models.EventTypeObservedTransfer, payload,
	).Scan(&record.ID, &record.HouseholdID, &record.ActorUserID, &record.Type, &record.Payload, &record.CreatedAt)
	if err != nil {
		return record, err
	}

	return record, nil
}

// InsertAppliedActions записывает по одному событию леджера на примененный payload.
func (r *EventRepository) InsertAppliedActions(ctx context.Context, householdID uuid.UUID, actorUserID *uuid.UUID, actions []models.ProposedAction) error {
	if len(actions) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, action := range actions {
		payload, err := json.Marshal(action.Payload)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO budget_events (id, household_id, actor_user_id, type, payload)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), householdID, actorUserID, string(action.Type), payload,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// HasRecentObservedTransfer ищет такой же перевод в пределах окна дедупликации.
func (r *EventRepository) HasRecentObservedTransfer(ctx context.Context, householdID uuid.UUID, event models.ObservedTransferEvent, window time.Duration) (bool, error) {
	var exists bool

	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM budget_events
			WHERE household_id = $1
			  AND type = $2
			  AND payload->>'from_pod_id' = $3
			  AND payload->>'to_pod_id' = $4
			  AND (payload->>'amount_in_cents')::bigint = $5
			  AND created_at > NOW() - make_interval(secs => $6)
		 )`,
		householdID,
		models.EventTypeObservedTransfer,
		event.FromPodID.String(),
		event.ToPodID.String(),
		event.AmountInCents,
		window.Seconds(),
	).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

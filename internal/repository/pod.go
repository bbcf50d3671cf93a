package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/pod-budget-chat/backend/internal/models"
)

type PodRepository struct {
	db *pgxpool.Pool
}

// NewPodRepository создает репозиторий подов.
func NewPodRepository(db *pgxpool.Pool) *PodRepository {
	return &PodRepository{db: db}
}

// ListForHousehold возвращает поды домохозяйства вместе с настройками.
func (r *PodRepository) ListForHousehold(ctx context.Context, householdID uuid.UUID, activeOnly bool) ([]models.PodWithSettings, error) {
	query := `SELECT p.id, p.household_id, p.name, p.is_active,
	                 p.balance_amount_in_cents, p.balance_error, p.balance_updated_at, p.created_at,
	                 s.pod_id, s.category, s.budgeted_amount_in_cents
	          FROM pods p
	          LEFT JOIN pod_settings s ON s.pod_id = p.id
	          WHERE p.household_id = $1`
	if activeOnly {
		query += ` AND p.is_active`
	}
	query += ` ORDER BY p.name, p.created_at`

	rows, err := r.db.Query(ctx, query, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pods := make([]models.PodWithSettings, 0)
	for rows.Next() {
		var pod models.Pod
		var settingsPodID *uuid.UUID
		var category *models.PodCategory
		var budgeted *int64

		err := rows.Scan(&pod.ID, &pod.HouseholdID, &pod.Name, &pod.IsActive,
			&pod.BalanceAmountInCents, &pod.BalanceError, &pod.BalanceUpdatedAt, &pod.CreatedAt,
			&settingsPodID, &category, &budgeted)
		if err != nil {
			return nil, err
		}

		item := models.PodWithSettings{Pod: pod}
		if settingsPodID != nil {
			item.Settings = &models.PodSettings{
				PodID:    *settingsPodID,
				Category: category,
			}
			if budgeted != nil {
				item.Settings.BudgetedAmountInCents = *budgeted
			}
		}
		pods = append(pods, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pods, nil
}

// ListByIDs возвращает поды домохозяйства по списку идентификаторов.
func (r *PodRepository) ListByIDs(ctx context.Context, householdID uuid.UUID, podIDs []uuid.UUID) ([]models.PodWithSettings, error) {
	if len(podIDs) == 0 {
		return []models.PodWithSettings{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT p.id, p.household_id, p.name, p.is_active,
		        p.balance_amount_in_cents, p.balance_error, p.balance_updated_at, p.created_at,
		        s.pod_id, s.category, s.budgeted_amount_in_cents
		 FROM pods p
		 LEFT JOIN pod_settings s ON s.pod_id = p.id
		 WHERE p.household_id = $1 AND p.id = ANY($2)`,
		householdID, podIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pods := make([]models.PodWithSettings, 0, len(podIDs))
	for rows.Next() {
		var pod models.Pod
		var settingsPodID *uuid.UUID
		var category *models.PodCategory
		var budgeted *int64

		err := rows.Scan(&pod.ID, &pod.HouseholdID, &pod.Name, &pod.IsActive,
			&pod.BalanceAmountInCents, &pod.BalanceError, &pod.BalanceUpdatedAt, &pod.CreatedAt,
			&settingsPodID, &category, &budgeted)
		if err != nil {
			return nil, err
		}

		item := models.PodWithSettings{Pod: pod}
		if settingsPodID != nil {
			item.Settings = &models.PodSettings{
				PodID:    *settingsPodID,
				Category: category,
			}
			if budgeted != nil {
				item.Settings.BudgetedAmountInCents = *budgeted
			}
		}
		pods = append(pods, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pods, nil
}

// UpsertBudgetedAmounts сохраняет новые плановые суммы подов одной транзакцией.
func (r *PodRepository) UpsertBudgetedAmounts(ctx context.Context, amounts map[uuid.UUID]int64) error {
	if len(amounts) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for podID, amount := range amounts {
		_, err = tx.Exec(ctx,
			`INSERT INTO pod_settings (pod_id, budgeted_amount_in_cents)
			 VALUES ($1, $2)
			 ON CONFLICT (pod_id)
			 DO UPDATE SET budgeted_amount_in_cents = EXCLUDED.budgeted_amount_in_cents`,
			podID, amount,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type HouseholdRepository struct {
	db *pgxpool.Pool
}

// NewHouseholdRepository создает репозиторий домохозяйств.
func NewHouseholdRepository(db *pgxpool.Pool) *HouseholdRepository {
	return &HouseholdRepository{db: db}
}

// IsMember проверяет членство пользователя в домохозяйстве.
func (r *HouseholdRepository) IsMember(ctx context.Context, householdID, userID uuid.UUID) (bool, error) {
	var exists bool

	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM household_members
			WHERE household_id = $1 AND user_id = $2
		 )`,
		householdID, userID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

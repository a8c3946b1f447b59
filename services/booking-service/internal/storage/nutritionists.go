package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/nutricare/nutribook/libs/db"
	"github.com/nutricare/nutribook/services/booking-service/internal/booking"
	"github.com/nutricare/nutribook/services/booking-service/internal/model"
)

type NutritionistRepository struct {
	pool *db.Pool
}

func NewNutritionistRepository(pool *db.Pool) *NutritionistRepository {
	return &NutritionistRepository{pool: pool}
}

const nutritionistColumns = `
	id::text, full_name, kind, COALESCE(specialization, ''), hourly_rate_cents, accepting_patients, created_at`

func scanNutritionist(row pgx.Row) (model.Nutritionist, error) {
	var n model.Nutritionist
	err := row.Scan(&n.ID, &n.FullName, &n.Kind, &n.Specialization, &n.HourlyRateCents, &n.AcceptingPatients, &n.CreatedAt)
	return n, err
}

func (r *NutritionistRepository) Get(ctx context.Context, id string) (model.Nutritionist, error) {
	n, err := scanNutritionist(r.pool.QueryRow(ctx, `
		SELECT `+nutritionistColumns+`
		FROM nutritionists
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Nutritionist{}, booking.ErrNotFound
		}
		return model.Nutritionist{}, err
	}
	return n, nil
}

// List returns the directory, optionally filtered by kind and restricted to
// nutritionists currently accepting patients.
func (r *NutritionistRepository) List(ctx context.Context, kind string, acceptingOnly bool) ([]model.Nutritionist, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+nutritionistColumns+`
		FROM nutritionists
		WHERE ($1 = '' OR kind = $1)
		  AND (NOT $2 OR accepting_patients)
		ORDER BY full_name
	`, kind, acceptingOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Nutritionist
	for rows.Next() {
		n, err := scanNutritionist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

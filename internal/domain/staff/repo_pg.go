package staff

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) HospitalForStaff(ctx context.Context, userID string) (string, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	var hospitalID uuid.UUID
	err = r.pool.QueryRow(ctx,
		`SELECT hospital_id FROM staff_hospitals WHERE user_id = $1`, uid).Scan(&hospitalID)
	if err != nil {
		return "", fmt.Errorf("hospital for staff %s: %w", userID, err)
	}
	return hospitalID.String(), nil
}

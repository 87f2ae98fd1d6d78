package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkwise/pcn-service/internal/domain"
)

// VehicleRepository encapsulates vehicle persistence.
type VehicleRepository interface {
	Create(ctx context.Context, vehicle *domain.Vehicle) error
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Vehicle, error)
}

type vehicleRepository struct {
	pool *pgxpool.Pool
}

// NewVehicleRepository instantiates repository.
func NewVehicleRepository(pool *pgxpool.Pool) VehicleRepository {
	return &vehicleRepository{pool: pool}
}

func (r *vehicleRepository) Create(ctx context.Context, vehicle *domain.Vehicle) error {
	const query = `
        INSERT INTO vehicles (user_id, plate, make, colour)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, vehicle.UserID, vehicle.Plate, vehicle.Make, vehicle.Colour).
		Scan(&vehicle.ID, &vehicle.CreatedAt)
}

func (r *vehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	const query = `
        SELECT id, user_id, plate, make, colour, created_at
        FROM vehicles WHERE id=$1`
	var v domain.Vehicle
	if err := r.pool.QueryRow(ctx, query, id).Scan(&v.ID, &v.UserID, &v.Plate, &v.Make, &v.Colour, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *vehicleRepository) ListByUser(ctx context.Context, userID string) ([]domain.Vehicle, error) {
	const query = `
        SELECT id, user_id, plate, make, colour, created_at
        FROM vehicles WHERE user_id=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Vehicle
	for rows.Next() {
		var v domain.Vehicle
		if err := rows.Scan(&v.ID, &v.UserID, &v.Plate, &v.Make, &v.Colour, &v.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

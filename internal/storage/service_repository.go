package storage

import (
	"context"

	"github.com/dvillacreses/citasalud/internal/model"
)

type ServiceRepository struct {
	db DB
}

func NewServiceRepository(db DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

func (r *ServiceRepository) ListActive(ctx context.Context) ([]model.Service, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, COALESCE(description, ''), duration_minutes, price_usd, is_active, created_at
		FROM services
		WHERE is_active
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.DurationMinutes, &s.PriceUSD, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return services, nil
}

// GetActive loads one service; inactive services behave as not found so they
// can no longer be booked.
func (r *ServiceRepository) GetActive(ctx context.Context, serviceID string) (model.Service, error) {
	var s model.Service
	err := r.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), duration_minutes, price_usd, is_active, created_at
		FROM services
		WHERE id = $1 AND is_active
	`, serviceID).Scan(&s.ID, &s.Name, &s.Description, &s.DurationMinutes, &s.PriceUSD, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return model.Service{}, err
	}
	return s, nil
}

package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// ProviderEvent records a received payment-provider webhook event for replay
// protection: (provider, provider_event_id) is unique.
type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

type ProviderEventRepository struct {
	db DB
}

func NewProviderEventRepository(db DB) *ProviderEventRepository {
	return &ProviderEventRepository{db: db}
}

func (r *ProviderEventRepository) Insert(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, evt.Provider, evt.ProviderEventID, evt.EventType, evt.Payload)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateProviderEvent
		}
		return err
	}
	return nil
}

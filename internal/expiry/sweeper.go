// Package expiry reclaims calendar slots held by card bookings that were never paid.
package expiry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dvillacreses/citasalud/internal/model"
	"github.com/dvillacreses/citasalud/internal/outbox"
)

type appointmentStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	ExpirePending(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]model.Appointment, error)
}

type eventStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Sweeper periodically expires pending card bookings older than TTL. The
// expired rows stop counting as committed, which frees their slots for new
// bookings without any further cleanup.
type Sweeper struct {
	appts      appointmentStore
	events     eventStore
	logger     *slog.Logger
	ttl        time.Duration
	sweepEvery time.Duration
	batchSize  int
	now        func() time.Time
}

type Config struct {
	TTL        time.Duration
	SweepEvery time.Duration
	BatchSize  int
}

func NewSweeper(appts appointmentStore, events eventStore, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		appts:      appts,
		events:     events,
		logger:     logger,
		ttl:        cfg.TTL,
		sweepEvery: cfg.SweepEvery,
		batchSize:  cfg.BatchSize,
		now:        time.Now,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", "ttl", s.ttl.String(), "interval", s.sweepEvery.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("expiry sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Info("expired unpaid bookings", "count", n)
			}
		}
	}
}

// SweepOnce expires one batch and returns how many rows it touched. The
// expirations and their outbox events commit atomically.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	tx, err := s.appts.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cutoff := s.now().Add(-s.ttl)
	expired, err := s.appts.ExpirePending(ctx, tx, cutoff, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, tx.Commit(ctx)
	}

	for _, appt := range expired {
		payload, err := json.Marshal(map[string]any{
			"appointment_id": appt.ID,
			"service_id":     appt.ServiceID,
			"patient_id":     appt.PatientID,
			"start_at":       appt.StartAt,
			"end_at":         appt.EndAt,
			"expired_at":     s.now().UTC(),
		})
		if err != nil {
			return 0, err
		}
		if err := s.events.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     outbox.EventAppointmentExpired,
			Payload:       payload,
		}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(expired), nil
}

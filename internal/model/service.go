package model

import "time"

// Service is a bookable clinic offering. DurationMinutes drives slot math and is
// read once per availability query.
type Service struct {
	ID              string
	Name            string
	Description     string
	DurationMinutes int
	PriceUSD        float64
	IsActive        bool
	CreatedAt       time.Time
}

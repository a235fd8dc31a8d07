package model

import "time"

type Patient struct {
	ID         string
	NationalID string
	FirstName  string
	LastName   string
	BirthDate  time.Time
	Gender     string
	Email      string
	Phone      string
	CreatedAt  time.Time
}

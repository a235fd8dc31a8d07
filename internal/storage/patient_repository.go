package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/dvillacreses/citasalud/internal/model"
)

type PatientRepository struct {
	db DB
}

func NewPatientRepository(db DB) *PatientRepository {
	return &PatientRepository{db: db}
}

func (r *PatientRepository) GetByNationalID(ctx context.Context, nationalID string) (model.Patient, error) {
	var p model.Patient
	err := r.db.QueryRow(ctx, `
		SELECT id, national_id, first_name, last_name, birth_date, gender, email, phone, created_at
		FROM patients
		WHERE national_id = $1
	`, nationalID).Scan(&p.ID, &p.NationalID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Gender, &p.Email, &p.Phone, &p.CreatedAt)
	if err != nil {
		return model.Patient{}, err
	}
	return p, nil
}

func (r *PatientRepository) GetByID(ctx context.Context, patientID string) (model.Patient, error) {
	var p model.Patient
	err := r.db.QueryRow(ctx, `
		SELECT id, national_id, first_name, last_name, birth_date, gender, email, phone, created_at
		FROM patients
		WHERE id = $1
	`, patientID).Scan(&p.ID, &p.NationalID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Gender, &p.Email, &p.Phone, &p.CreatedAt)
	if err != nil {
		return model.Patient{}, err
	}
	return p, nil
}

// Create inserts a new patient. Unique constraints on national_id and email
// surface as IsUniqueViolation errors.
func (r *PatientRepository) Create(ctx context.Context, p *model.Patient) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(ctx, `
		INSERT INTO patients (id, national_id, first_name, last_name, birth_date, gender, email, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, p.NationalID, p.FirstName, p.LastName, p.BirthDate, p.Gender, p.Email, p.Phone)
	if err != nil {
		return "", err
	}
	p.ID = id
	return id, nil
}

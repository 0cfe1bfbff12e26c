// Package storage persists users, patients and analyses.
package storage

import (
	"context"

	"github.com/Brownie44l1/pneumo-api/internal/domain"
)

// Store is the persistence contract the services depend on.
type Store interface {
	// CreateUser assigns u.ID. A taken username is a Conflict error.
	CreateUser(ctx context.Context, u *domain.User) error
	// UserByUsername returns a NotFound error when no such user exists.
	UserByUsername(ctx context.Context, username string) (*domain.User, error)
	UserByID(ctx context.Context, id int64) (*domain.User, error)
	UpdateUser(ctx context.Context, u *domain.User) error

	CreatePatient(ctx context.Context, p domain.Patient) (int64, error)
	RecordAnalysis(ctx context.Context, a domain.Analysis) (int64, error)
	// RecordSubmission stores a patient and the analysis made for it in one
	// atomic step. a.PatientID is ignored. Either both rows exist afterwards
	// or neither does.
	RecordSubmission(ctx context.Context, p domain.Patient, a domain.Analysis) (patientID, analysisID int64, err error)
	// FetchUserHistory returns the analyses of userID, most recent first.
	FetchUserHistory(ctx context.Context, userID int64) ([]domain.HistoryEntry, error)
}

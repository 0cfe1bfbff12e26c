package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Postgres is a Store backed by PostgreSQL through lib/pq.
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgres connects to connStr and creates the tables if needed.
func NewPostgres(ctx context.Context, connStr string, logger *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, q := range initQueries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	return NewPostgresFromDB(db, logger), nil
}

// NewPostgresFromDB wraps an open handle without touching the schema.
func NewPostgresFromDB(db *sql.DB, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, logger: logger.Named("postgres")}
}

func (r *Postgres) Close() error {
	return r.db.Close()
}

func (r *Postgres) CreateUser(ctx context.Context, u *domain.User) error {
	err := r.db.QueryRowContext(ctx, createUserQuery,
		u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Email,
	).Scan(&u.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperr.Errorf(apperr.Conflict, "storage.CreateUser", "username %q already exists", u.Username)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Postgres) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, userByUsernameQuery, username), "storage.UserByUsername")
}

func (r *Postgres) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, userByIDQuery, id), "storage.UserByID")
}

func (r *Postgres) scanUser(row *sql.Row, op string) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, op, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

func (r *Postgres) UpdateUser(ctx context.Context, u *domain.User) error {
	res, err := r.db.ExecContext(ctx, updateUserQuery,
		u.ID, u.PasswordHash, u.FirstName, u.LastName, u.Email)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return apperr.Errorf(apperr.NotFound, "storage.UpdateUser", "user %d", u.ID)
	}
	return nil
}

func (r *Postgres) CreatePatient(ctx context.Context, p domain.Patient) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, createPatientQuery,
		p.LastName, p.FirstName, p.Age, p.Sex,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create patient: %w", err)
	}
	return id, nil
}

func (r *Postgres) RecordAnalysis(ctx context.Context, a domain.Analysis) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, recordAnalysisQuery, analysisArgs(a)...).Scan(&id)
	if err != nil {
		return 0, analysisError("storage.RecordAnalysis", err)
	}
	return id, nil
}

func (r *Postgres) RecordSubmission(ctx context.Context, p domain.Patient, a domain.Analysis) (int64, int64, error) {
	const op = "storage.RecordSubmission"

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin submission: %w", err)
	}
	defer tx.Rollback()

	var patientID int64
	err = tx.QueryRowContext(ctx, createPatientQuery,
		p.LastName, p.FirstName, p.Age, p.Sex,
	).Scan(&patientID)
	if err != nil {
		return 0, 0, fmt.Errorf("create patient: %w", err)
	}

	a.PatientID = patientID
	var analysisID int64
	if err := tx.QueryRowContext(ctx, recordAnalysisQuery, analysisArgs(a)...).Scan(&analysisID); err != nil {
		return 0, 0, analysisError(op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit submission: %w", err)
	}
	return patientID, analysisID, nil
}

func analysisArgs(a domain.Analysis) []any {
	return []any{
		a.UserID, a.PatientID, a.FileName, a.Heatmap,
		string(a.Verdict), a.Probability, string(a.Confidence), a.Timestamp,
	}
}

// analysisError reports a missing user or patient as NotFound.
func analysisError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return apperr.E(apperr.NotFound, op, err)
	}
	return fmt.Errorf("record analysis: %w", err)
}

func (r *Postgres) FetchUserHistory(ctx context.Context, userID int64) ([]domain.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, userHistoryQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var (
			e                   domain.HistoryEntry
			verdict, confidence string
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.PatientID, &e.FileName, &e.Heatmap, &verdict,
			&e.Probability, &confidence, &e.Timestamp,
			&e.Patient.ID, &e.Patient.LastName, &e.Patient.FirstName, &e.Patient.Age, &e.Patient.Sex,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Verdict = domain.Verdict(verdict)
		e.Confidence = domain.ConfidenceBand(confidence)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	r.logger.Debug("history fetched", zap.Int64("userID", userID), zap.Int("count", len(entries)))
	return entries, nil
}

var _ Store = (*Postgres)(nil)

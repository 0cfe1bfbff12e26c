package storage

var initQueries = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		hashed_password TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id BIGSERIAL PRIMARY KEY,
		last_name TEXT NOT NULL,
		first_name TEXT NOT NULL,
		age INTEGER NOT NULL,
		sex TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS analysis_history (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		patient_id BIGINT NOT NULL REFERENCES patients(id),
		file_name TEXT NOT NULL,
		heatmap TEXT NOT NULL DEFAULT '',
		verdict TEXT NOT NULL,
		probability DOUBLE PRECISION NOT NULL,
		confidence TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS analysis_history_user_created_idx
		ON analysis_history (user_id, created_at DESC)`,
}

const (
	createUserQuery = `INSERT INTO users (username, hashed_password, first_name, last_name, email)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	userByUsernameQuery = `SELECT id, username, hashed_password, first_name, last_name, email
		FROM users WHERE username = $1`
	userByIDQuery = `SELECT id, username, hashed_password, first_name, last_name, email
		FROM users WHERE id = $1`
	updateUserQuery = `UPDATE users SET hashed_password = $2, first_name = $3, last_name = $4, email = $5
		WHERE id = $1`
)

const (
	createPatientQuery = `INSERT INTO patients (last_name, first_name, age, sex)
		VALUES ($1, $2, $3, $4) RETURNING id`
	recordAnalysisQuery = `INSERT INTO analysis_history
		(user_id, patient_id, file_name, heatmap, verdict, probability, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	userHistoryQuery = `SELECT a.id, a.user_id, a.patient_id, a.file_name, a.heatmap, a.verdict,
		a.probability, a.confidence, a.created_at,
		p.id, p.last_name, p.first_name, p.age, p.sex
		FROM analysis_history a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.user_id = $1
		ORDER BY a.created_at DESC, a.id DESC`
)

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceattend/internal/config"
	"github.com/your-org/faceattend/internal/engine"
	"github.com/your-org/faceattend/internal/models"
)

// ErrDuplicateRoll is returned when a student with the same roll number
// already exists.
var ErrDuplicateRoll = errors.New("roll number already registered")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables the station and API depend on.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS students (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			roll_no TEXT NOT NULL UNIQUE,
			class TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS face_samples (
			id UUID PRIMARY KEY,
			student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			object_key TEXT NOT NULL UNIQUE,
			embedding vector(512),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id BIGSERIAL PRIMARY KEY,
			student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			attendance_date DATE NOT NULL,
			check_in_time TIMESTAMPTZ NOT NULL,
			check_out_time TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'present',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (student_id, attendance_date),
			CHECK (check_out_time IS NULL OR check_out_time > check_in_time)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			station_id TEXT NOT NULL,
			student_id BIGINT NOT NULL DEFAULT 0,
			roll_no TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance (attendance_date)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events (timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- Students ---

func (s *PostgresStore) CreateStudent(ctx context.Context, st *models.Student) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO students (name, roll_no, class, department, email, phone)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
		st.Name, st.RollNo, st.Class, st.Department, st.Email, st.Phone,
	).Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRoll
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetStudent(ctx context.Context, id int64) (*models.Student, error) {
	st := &models.Student{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, roll_no, class, department, email, phone, created_at, updated_at
		 FROM students WHERE id = $1`, id,
	).Scan(&st.ID, &st.Name, &st.RollNo, &st.Class, &st.Department, &st.Email, &st.Phone, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) GetStudentByRoll(ctx context.Context, rollNo string) (*models.Student, error) {
	st := &models.Student{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, roll_no, class, department, email, phone, created_at, updated_at
		 FROM students WHERE roll_no = $1`, rollNo,
	).Scan(&st.ID, &st.Name, &st.RollNo, &st.Class, &st.Department, &st.Email, &st.Phone, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get student by roll: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ListStudents(ctx context.Context) ([]models.Student, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, roll_no, class, department, email, phone, created_at, updated_at
		 FROM students ORDER BY roll_no`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []models.Student
	for rows.Next() {
		var st models.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.RollNo, &st.Class, &st.Department, &st.Email, &st.Phone, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, st)
	}
	return students, nil
}

// DeleteStudent withdraws a student. Sample and attendance rows go with the
// student row via FK cascade; audit events stay as history. Returns the
// object keys of the removed samples so the caller can purge the stored
// crops.
func (s *PostgresStore) DeleteStudent(ctx context.Context, id int64) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete student: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT object_key FROM face_samples WHERE student_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("list sample keys: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sample key: %w", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sample keys: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete student: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete student: %w", err)
	}
	return keys, nil
}

// --- Face samples ---

func (s *PostgresStore) InsertSample(ctx context.Context, studentID int64, objectKey string) (*models.FaceSample, error) {
	fs := &models.FaceSample{
		ID:        uuid.New(),
		StudentID: studentID,
		ObjectKey: objectKey,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO face_samples (id, student_id, object_key) VALUES ($1, $2, $3)
		 ON CONFLICT (object_key) DO UPDATE SET student_id = EXCLUDED.student_id
		 RETURNING created_at`,
		fs.ID, fs.StudentID, fs.ObjectKey,
	).Scan(&fs.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert sample: %w", err)
	}
	return fs, nil
}

func (s *PostgresStore) ListSamples(ctx context.Context, studentID *int64) ([]models.FaceSample, error) {
	query := `SELECT id, student_id, object_key, created_at FROM face_samples ORDER BY created_at`
	args := []interface{}{}
	if studentID != nil {
		query = `SELECT id, student_id, object_key, created_at FROM face_samples WHERE student_id = $1 ORDER BY created_at`
		args = append(args, *studentID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var samples []models.FaceSample
	for rows.Next() {
		var fs models.FaceSample
		if err := rows.Scan(&fs.ID, &fs.StudentID, &fs.ObjectKey, &fs.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, fs)
	}
	return samples, nil
}

func (s *PostgresStore) SetSampleEmbedding(ctx context.Context, objectKey string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	_, err := s.pool.Exec(ctx,
		`UPDATE face_samples SET embedding = $1 WHERE object_key = $2`, vec, objectKey)
	if err != nil {
		return fmt.Errorf("set sample embedding: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountSamples(ctx context.Context, studentID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_samples WHERE student_id = $1`, studentID,
	).Scan(&count)
	return count, err
}

type SearchMatch struct {
	StudentID int64   `json:"student_id"`
	Name      string  `json:"name"`
	RollNo    string  `json:"roll_no"`
	Distance  float64 `json:"distance"`
}

// SearchFaces finds the closest enrolled students for an embedding by cosine
// distance over the stored sample vectors. Used for duplicate-enrollment
// checks from the admin API.
func (s *PostgresStore) SearchFaces(ctx context.Context, embedding []float32, maxDistance float64, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx, `
		SELECT fs.student_id, st.name, st.roll_no, MIN(fs.embedding <=> $1) AS distance
		FROM face_samples fs
		JOIN students st ON st.id = fs.student_id
		WHERE fs.embedding IS NOT NULL
		GROUP BY fs.student_id, st.name, st.roll_no
		HAVING MIN(fs.embedding <=> $1) <= $2
		ORDER BY distance
		LIMIT $3`,
		vec, maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("search faces: %w", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.StudentID, &m.Name, &m.RollNo, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// --- Attendance sessions (engine.SessionRepository) ---

func (s *PostgresStore) OpenSession(ctx context.Context, subjectID int64) (*engine.Session, error) {
	return s.scanSession(s.pool.QueryRow(ctx,
		`SELECT student_id, attendance_date, check_in_time, check_out_time
		 FROM attendance
		 WHERE student_id = $1 AND check_out_time IS NULL
		 ORDER BY attendance_date DESC LIMIT 1`, subjectID))
}

func (s *PostgresStore) SessionOn(ctx context.Context, subjectID int64, day time.Time) (*engine.Session, error) {
	return s.scanSession(s.pool.QueryRow(ctx,
		`SELECT student_id, attendance_date, check_in_time, check_out_time
		 FROM attendance
		 WHERE student_id = $1 AND attendance_date = $2`, subjectID, dateOf(day)))
}

// dateOf narrows a timestamp to its calendar day for DATE-typed columns.
func dateOf(t time.Time) string {
	return t.Format("2006-01-02")
}

func (s *PostgresStore) scanSession(row pgx.Row) (*engine.Session, error) {
	sess := &engine.Session{}
	err := row.Scan(&sess.StudentID, &sess.Date, &sess.CheckIn, &sess.CheckOut)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) CheckIn(ctx context.Context, subjectID int64, t time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attendance (student_id, attendance_date, check_in_time, status)
		 VALUES ($1, $2, $3, 'present')`, subjectID, dateOf(t), t)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) CheckOut(ctx context.Context, subjectID int64, day time.Time, t time.Time) error {
	// The IS NULL guard keeps a second check-out a no-op at the row level.
	_, err := s.pool.Exec(ctx,
		`UPDATE attendance SET check_out_time = $1
		 WHERE student_id = $2 AND attendance_date = $3 AND check_out_time IS NULL`,
		t, subjectID, dateOf(day))
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// --- Attendance queries ---

func (s *PostgresStore) ListAttendance(ctx context.Context, date *time.Time, studentID *int64, limit, offset int) ([]models.AttendanceSession, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	baseWhere := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if date != nil {
		baseWhere += fmt.Sprintf(" AND attendance_date = $%d", argIdx)
		args = append(args, dateOf(*date))
		argIdx++
	}
	if studentID != nil {
		baseWhere += fmt.Sprintf(" AND student_id = $%d", argIdx)
		args = append(args, *studentID)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM attendance " + baseWhere
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, student_id, attendance_date, check_in_time, check_out_time, status, created_at
		 FROM attendance %s ORDER BY attendance_date DESC, check_in_time DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var sessions []models.AttendanceSession
	for rows.Next() {
		var sess models.AttendanceSession
		if err := rows.Scan(&sess.ID, &sess.StudentID, &sess.Date, &sess.CheckIn, &sess.CheckOut, &sess.Status, &sess.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan attendance: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, nil
}

type DaySummary struct {
	Date       time.Time `json:"date"`
	Present    int       `json:"present"`
	CheckedOut int       `json:"checked_out"`
	Students   int       `json:"students"`
}

func (s *PostgresStore) SummaryFor(ctx context.Context, day time.Time) (*DaySummary, error) {
	summary := &DaySummary{Date: day}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM attendance WHERE attendance_date = $1),
			(SELECT COUNT(*) FROM attendance WHERE attendance_date = $1 AND check_out_time IS NOT NULL),
			(SELECT COUNT(*) FROM students)`,
		dateOf(day),
	).Scan(&summary.Present, &summary.CheckedOut, &summary.Students)
	if err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	return summary, nil
}

// --- Audit events ---

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, ev *models.AuditEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (id, station_id, student_id, roll_no, action, details, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.StationID, ev.StudentID, ev.RollNo, ev.Action, ev.Details, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, station_id, student_id, roll_no, action, details, timestamp
		 FROM audit_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var ev models.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.StationID, &ev.StudentID, &ev.RollNo, &ev.Action, &ev.Details, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

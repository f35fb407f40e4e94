package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"telegram-tutor-bot/internal/logger"
	"telegram-tutor-bot/internal/models"
	apperrors "telegram-tutor-bot/pkg/errors"
)

//go:embed schema.sql
var ddl embed.FS

// Columns that appeared after the first release. They are added one by one so
// that an old bot.db keeps working.
var lateColumns = []struct{ table, column, def string }{
	{"students", "chat_id", "INTEGER NOT NULL DEFAULT 0"},
	{"students", "notified_stage", "INTEGER NOT NULL DEFAULT 0"},
	{"submissions", "answered", "INTEGER NOT NULL DEFAULT 0"},
}

type DB struct {
	*sql.DB
	log zerolog.Logger
}

func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	d := &DB{DB: db, log: logger.For("storage")}
	if err = d.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate() error {
	b, err := ddl.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	if _, err = d.Exec(string(b)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	for _, c := range lateColumns {
		_, err := d.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.def))
		if err != nil {
			// duplicate column is the normal case on every start after the first
			d.log.Debug().Err(err).Str("table", c.table).Str("column", c.column).Msg("add column skipped")
		}
	}

	_, err = d.Exec(`CREATE INDEX IF NOT EXISTS idx_students_chat ON students(chat_id)`)
	return err
}

func isUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// ---------- students --------------------------------------------------------

const studentCols = `login, password_hash, name, chat_id, schedule, homework, progress, notified_stage, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(r scanner) (*models.Student, error) {
	var s models.Student
	err := r.Scan(&s.Login, &s.PasswordHash, &s.Name, &s.ChatID,
		&s.Schedule, &s.Homework, &s.Progress, &s.NotifiedStage, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *DB) AddStudent(ctx context.Context, s *models.Student) error {
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// a chat belongs to one student, the new record takes it over
	if s.ChatID != 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE students SET chat_id = 0 WHERE chat_id = ?`, s.ChatID); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
        INSERT INTO students (`+studentCols+`)
        VALUES (?,?,?,?,?,?,?,?,?)
    `, s.Login, s.PasswordHash, s.Name, s.ChatID, s.Schedule, s.Homework, s.Progress, s.NotifiedStage, s.CreatedAt)
	if isUnique(err) {
		return fmt.Errorf("student %q: %w", s.Login, apperrors.ErrAlreadyExists)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) GetStudent(ctx context.Context, login string) (*models.Student, error) {
	s, err := scanStudent(d.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE login = ?`, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return s, err
}

func (d *DB) GetStudentByChat(ctx context.Context, chatID int64) (*models.Student, error) {
	if chatID == 0 {
		return nil, apperrors.ErrNotFound
	}
	s, err := scanStudent(d.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE chat_id = ?`, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return s, err
}

func (d *DB) listStudents(ctx context.Context, query string, args ...any) ([]models.Student, error) {
	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []models.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

func (d *DB) ListStudents(ctx context.Context) ([]models.Student, error) {
	return d.listStudents(ctx, `SELECT `+studentCols+` FROM students ORDER BY name, login`)
}

// ListScheduled returns students with a non-empty schedule, for the reminder sweep.
func (d *DB) ListScheduled(ctx context.Context) ([]models.Student, error) {
	return d.listStudents(ctx, `SELECT `+studentCols+` FROM students WHERE schedule <> '' ORDER BY login`)
}

func (d *DB) RemoveStudent(ctx context.Context, login string) error {
	res, err := d.ExecContext(ctx, `DELETE FROM students WHERE login = ?`, login)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// BindChat attaches chatID to login. A chat belongs to at most one student,
// so any previous binding of the same chat is dropped.
func (d *DB) BindChat(ctx context.Context, login string, chatID int64) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE students SET chat_id = 0 WHERE chat_id = ? AND login <> ?`, chatID, login); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE students SET chat_id = ? WHERE login = ?`, chatID, login)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateField overwrites one column of one student. Writing a different
// schedule also forgets which lesson notices were sent for the previous value.
func (d *DB) UpdateField(ctx context.Context, login string, field models.Field, value string) error {
	var (
		query string
		args  = []any{value, login}
	)
	switch field {
	case models.FieldSchedule:
		// saving the same lesson time again keeps the notices already sent
		query = `UPDATE students
            SET notified_stage = CASE WHEN schedule = ? THEN notified_stage ELSE 0 END,
                schedule = ?
            WHERE login = ?`
		args = []any{value, value, login}
	case models.FieldHomework:
		query = `UPDATE students SET homework = ? WHERE login = ?`
	case models.FieldProgress:
		query = `UPDATE students SET progress = ? WHERE login = ?`
	default:
		return apperrors.NewValidationError("field", field, "unknown field")
	}
	res, err := d.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// AdvanceStage stores stage only while the schedule is still the one the
// caller looked at; it reports whether the row changed.
func (d *DB) AdvanceStage(ctx context.Context, login, schedule string, stage models.NotifyStage) (bool, error) {
	res, err := d.ExecContext(ctx, `
        UPDATE students SET notified_stage = ?
        WHERE login = ? AND schedule = ? AND notified_stage < ?
    `, stage, login, schedule, stage)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ClearSchedule resets an elapsed lesson, guarded the same way as AdvanceStage.
func (d *DB) ClearSchedule(ctx context.Context, login, schedule string) (bool, error) {
	res, err := d.ExecContext(ctx, `
        UPDATE students SET schedule = '', notified_stage = 0
        WHERE login = ? AND schedule = ?
    `, login, schedule)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ---------- submissions -----------------------------------------------------

const submissionCols = `id, login, kind, content, file_id, answered, created_at`

func (d *DB) InsertSubmission(ctx context.Context, s *models.Submission) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}
	_, err := d.ExecContext(ctx, `
        INSERT INTO submissions (`+submissionCols+`)
        VALUES (?,?,?,?,?,?,?)
    `, s.ID, s.Login, s.Kind, s.Content, s.FileID, s.Answered, s.CreatedAt)
	if isForeignKey(err) {
		return fmt.Errorf("student %q: %w", s.Login, apperrors.ErrNotFound)
	}
	return err
}

func scanSubmission(r scanner) (*models.Submission, error) {
	var s models.Submission
	err := r.Scan(&s.ID, &s.Login, &s.Kind, &s.Content, &s.FileID, &s.Answered, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *DB) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	s, err := scanSubmission(d.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return s, err
}

// ListSubmissions returns the newest submissions first, unanswered ones before
// answered ones. limit <= 0 means no limit.
func (d *DB) ListSubmissions(ctx context.Context, limit int) ([]models.Submission, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.QueryContext(ctx, `
        SELECT `+submissionCols+` FROM submissions
        ORDER BY answered, created_at DESC, id
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

// MarkAnswered flips answered false→true. Answering twice is a no-op.
func (d *DB) MarkAnswered(ctx context.Context, id string) error {
	res, err := d.ExecContext(ctx, `UPDATE submissions SET answered = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

package job

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Compile-time check that SQLiteRepository implements Repository.
var _ Repository = (*SQLiteRepository)(nil)

//go:embed migrations/*.sql
var migrationFS embed.FS

const jobColumns = `id, status, progress, error_message, input_path, temp_input,
    output_path, speed, resolution, push_to_s3, video_url, render_width,
    render_height, output_duration, created_at, updated_at, started_at, completed_at`

// SQLiteRepository persists jobs in a SQLite database so the job list
// survives restarts.
type SQLiteRepository struct {
	db   *sql.DB
	path string
}

// OpenSQLiteRepository opens or creates the database at path and applies
// migrations.
func OpenSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	r := &SQLiteRepository{db: db, path: path}
	if err := r.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// Path returns the database file location.
func (r *SQLiteRepository) Path() string {
	return r.path
}

// Close closes the underlying database connection.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Save inserts job or replaces the stored row with the same ID. The
// original insertion order is kept.
func (r *SQLiteRepository) Save(ctx context.Context, job *Job) error {
	j := job.Clone()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO export_jobs (`+jobColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            progress = excluded.progress,
            error_message = excluded.error_message,
            input_path = excluded.input_path,
            temp_input = excluded.temp_input,
            output_path = excluded.output_path,
            speed = excluded.speed,
            resolution = excluded.resolution,
            push_to_s3 = excluded.push_to_s3,
            video_url = excluded.video_url,
            render_width = excluded.render_width,
            render_height = excluded.render_height,
            output_duration = excluded.output_duration,
            updated_at = excluded.updated_at,
            started_at = excluded.started_at,
            completed_at = excluded.completed_at`,
		j.ID,
		string(j.Status),
		j.Progress,
		nullableString(j.Error),
		j.InputPath,
		boolToInt(j.TempInput),
		nullableString(j.OutputPath),
		j.Speed,
		j.Resolution,
		boolToInt(j.PushToS3),
		nullableString(j.VideoURL),
		j.RenderWidth,
		j.RenderHeight,
		j.OutputDuration,
		formatTime(j.CreatedAt),
		formatTime(j.UpdatedAt),
		nullableTime(j.StartedAt),
		nullableTime(j.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

// FindByID returns the job with the given ID.
func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM export_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// List returns all jobs, most recently inserted first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM export_jobs ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM export_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// FailInterrupted marks jobs that were queued or running when the previous
// process stopped as failed. Their exports cannot resume.
func (r *SQLiteRepository) FailInterrupted(ctx context.Context, message string) (int64, error) {
	now := formatTime(time.Now())
	res, err := r.db.ExecContext(ctx,
		`UPDATE export_jobs
         SET status = ?, error_message = ?, updated_at = ?, completed_at = ?
         WHERE status IN (?, ?)`,
		string(StatusFailed),
		message,
		now,
		now,
		string(StatusQueued),
		string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		versions = append(versions, entry.Name())
	}
	sort.Strings(versions)

	migrations := make([]migration, 0, len(versions))
	for _, name := range versions {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}
	return migrations, nil
}

func (r *SQLiteRepository) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		j                   Job
		status              string
		errMsg, output, url sql.NullString
		tempInput, push     int
		created, updated    string
		started, completed  sql.NullString
	)
	if err := scanner.Scan(
		&j.ID,
		&status,
		&j.Progress,
		&errMsg,
		&j.InputPath,
		&tempInput,
		&output,
		&j.Speed,
		&j.Resolution,
		&push,
		&url,
		&j.RenderWidth,
		&j.RenderHeight,
		&j.OutputDuration,
		&created,
		&updated,
		&started,
		&completed,
	); err != nil {
		return nil, err
	}

	j.Status = Status(status)
	j.Error = errMsg.String
	j.OutputPath = output.String
	j.VideoURL = url.String
	j.TempInput = tempInput != 0
	j.PushToS3 = push != 0

	var err error
	if j.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if j.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if started.Valid {
		if j.StartedAt, err = parseTime(started.String); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
	}
	if completed.Valid {
		if j.CompletedAt, err = parseTime(completed.String); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
	}
	return &j, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

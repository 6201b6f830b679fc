package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrNotFound is returned when no image row matches the requested path.
var ErrNotFound = errors.New("image not found")

// Image is one indexed source image.
type Image struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	ParentPath string    `json:"parentPath"`
	ModTime    time.Time `json:"modTime"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType,omitempty"`
	TakenAt    time.Time `json:"takenAt,omitempty"`
}

// Database wraps the SQLite image index.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if needed) the database FILE at dbPath. The parent
// directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout keeps concurrent CLI and server processes from failing with "database is locked"
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		parent_path TEXT NOT NULL,
		mod_time INTEGER NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		mime_type TEXT,
		taken_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_images_parent ON images(parent_path);
	CREATE INDEX IF NOT EXISTS idx_images_updated ON images(updated_at);
	`

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping verifies the connection is usable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

const upsertQuery = `
	INSERT INTO images (name, path, parent_path, mod_time, size, mime_type, taken_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		name = excluded.name,
		parent_path = excluded.parent_path,
		mod_time = excluded.mod_time,
		size = excluded.size,
		mime_type = excluded.mime_type,
		taken_at = excluded.taken_at,
		updated_at = excluded.updated_at
	`

// UpsertImage inserts or refreshes a single image row.
func (d *Database) UpsertImage(ctx context.Context, img *Image) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_image", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, upsertQuery, upsertArgs(img, start)...)
	return err
}

// UpsertImages writes all rows in one transaction and returns the time stamp
// they were written with, suitable for DeleteStale.
func (d *Database) UpsertImages(ctx context.Context, images []Image) (time.Time, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_image", start, err) }()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return start, err
	}

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		err = rollback(tx, err)
		return start, err
	}
	defer stmt.Close()

	for i := range images {
		if _, err = stmt.ExecContext(ctx, upsertArgs(&images[i], start)...); err != nil {
			err = rollback(tx, fmt.Errorf("upsert %s: %w", images[i].Path, err))
			return start, err
		}
	}

	err = tx.Commit()
	return start, err
}

func upsertArgs(img *Image, now time.Time) []any {
	var taken int64
	if !img.TakenAt.IsZero() {
		taken = img.TakenAt.Unix()
	}
	return []any{
		img.Name,
		img.Path,
		img.ParentPath,
		img.ModTime.Unix(),
		img.Size,
		img.MimeType,
		taken,
		now.UnixNano(),
	}
}

func rollback(tx *sql.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
	}
	return err
}

// DeleteStale removes rows under parent that were last written before cutoff.
// An empty parent matches every row. updated_at holds Unix nanoseconds so
// back-to-back index runs separate cleanly.
func (d *Database) DeleteStale(ctx context.Context, parent string, cutoff time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_stale", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := "DELETE FROM images WHERE updated_at < ?"
	args := []any{cutoff.UnixNano()}
	if parent != "" {
		query += " AND (parent_path = ? OR parent_path LIKE ? ESCAPE '\\')"
		args = append(args, parent, escapeLike(parent)+"/%")
	}

	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return n, err
}

// GetImage returns the row for path or ErrNotFound.
func (d *Database) GetImage(ctx context.Context, path string) (*Image, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_image", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
	SELECT name, path, parent_path, mod_time, size, COALESCE(mime_type, ''), taken_at
	FROM images WHERE path = ?
	`, path)

	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// ListImages returns the images directly inside parent ordered by name.
func (d *Database) ListImages(ctx context.Context, parent string) ([]Image, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_images", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
	SELECT name, path, parent_path, mod_time, size, COALESCE(mime_type, ''), taken_at
	FROM images WHERE parent_path = ?
	ORDER BY name COLLATE NOCASE
	`, parent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img *Image
		img, err = scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	err = rows.Err()
	return images, err
}

// Count returns the number of indexed images.
func (d *Database) Count(ctx context.Context) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count_images", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images").Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(s scanner) (*Image, error) {
	var img Image
	var modTime, takenAt int64
	if err := s.Scan(&img.Name, &img.Path, &img.ParentPath, &modTime, &img.Size, &img.MimeType, &takenAt); err != nil {
		return nil, err
	}
	img.ModTime = time.Unix(modTime, 0)
	if takenAt != 0 {
		img.TakenAt = time.Unix(takenAt, 0)
	}
	return &img, nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	if dbInfo, err := os.Stat(dbPath); err == nil && dbInfo.Mode().Perm()&0o200 == 0 {
		logging.Warn("Database file is read-only! Mode: %v", dbInfo.Mode())
	}
	return nil
}

package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/afero"

	"github.com/cinehome/backend/internal/models"
)

// Repository loads and saves whole library blobs. Load returns an empty library for a
// user that has never saved one; Exists tells the two apart.
type Repository interface {
	Load(ctx context.Context, userID string) (*models.Library, error)
	Save(ctx context.Context, userID string, lib *models.Library) error
	Exists(ctx context.Context, userID string) (bool, error)
}

// FileRepository keeps one JSON document per user in dir.
type FileRepository struct {
	fs  afero.Fs
	dir string
}

// NewFileRepository creates dir if needed.
func NewFileRepository(fs afero.Fs, dir string) (*FileRepository, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileRepository{fs: fs, dir: dir}, nil
}

func (r *FileRepository) path(userID string) string {
	return filepath.Join(r.dir, userID+".json")
}

// Load reads <dir>/<userID>.json.
func (r *FileRepository) Load(_ context.Context, userID string) (*models.Library, error) {
	raw, err := afero.ReadFile(r.fs, r.path(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.NewLibrary(), nil
		}
		return nil, fmt.Errorf("read library: %w", err)
	}
	lib := models.NewLibrary()
	if err := json.Unmarshal(raw, lib); err != nil {
		return nil, fmt.Errorf("decode library %s: %w", userID, err)
	}
	lib.Normalize()
	return lib, nil
}

// Exists reports whether the user has a saved document.
func (r *FileRepository) Exists(_ context.Context, userID string) (bool, error) {
	ok, err := afero.Exists(r.fs, r.path(userID))
	if err != nil {
		return false, fmt.Errorf("stat library: %w", err)
	}
	return ok, nil
}

// Save replaces the document atomically: a temp file in the same directory is written,
// synced and renamed over the old one.
func (r *FileRepository) Save(_ context.Context, userID string, lib *models.Library) error {
	raw, err := json.MarshalIndent(lib, "", "  ")
	if err != nil {
		return fmt.Errorf("encode library: %w", err)
	}

	tmp, err := afero.TempFile(r.fs, r.dir, "."+userID+".json.tmp-*")
	if err != nil {
		return fmt.Errorf("create temp library: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = r.fs.Remove(tmpName)
	}
	if _, err := tmp.Write(raw); err != nil {
		cleanup()
		return fmt.Errorf("write library: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync library: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = r.fs.Remove(tmpName)
		return fmt.Errorf("close library: %w", err)
	}
	if err := r.fs.Rename(tmpName, r.path(userID)); err != nil {
		_ = r.fs.Remove(tmpName)
		return fmt.Errorf("replace library: %w", err)
	}
	return nil
}

// DBTX is the subset of *pgxpool.Pool the Postgres repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository keeps libraries as JSONB rows in user_libraries.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a Postgres-backed library repository.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Load reads the user's row.
func (r *PostgresRepository) Load(ctx context.Context, userID string) (*models.Library, error) {
	lib := models.NewLibrary()
	err := r.db.QueryRow(ctx, `SELECT data FROM user_libraries WHERE user_id = $1`, userID).Scan(lib)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.NewLibrary(), nil
		}
		return nil, fmt.Errorf("select library: %w", err)
	}
	lib.Normalize()
	return lib, nil
}

// Exists reports whether the user has a row.
func (r *PostgresRepository) Exists(ctx context.Context, userID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_libraries WHERE user_id = $1)`, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("select library exists: %w", err)
	}
	return ok, nil
}

// Save upserts the user's row.
func (r *PostgresRepository) Save(ctx context.Context, userID string, lib *models.Library) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_libraries (user_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		userID, lib,
	)
	if err != nil {
		return fmt.Errorf("upsert library: %w", err)
	}
	return nil
}

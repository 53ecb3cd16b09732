package library

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/cinehome/backend/internal/models"
)

func TestFileRepositoryRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, err := NewFileRepository(fs, "/data")
	require.NoError(t, err)
	ctx := context.Background()

	lib, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.NewLibrary(), lib)
	exists, err := repo.Exists(ctx, "u1")
	require.NoError(t, err)
	require.False(t, exists)

	lib.Favorites = []string{"a"}
	lib.WatchProgress["a"] = 12.5
	require.NoError(t, repo.Save(ctx, "u1", lib))

	got, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, lib, got)
	exists, err = repo.Exists(ctx, "u1")
	require.NoError(t, err)
	require.True(t, exists)

	entries, err := afero.ReadDir(fs, "/data")
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files may remain")
	require.Equal(t, "u1.json", entries[0].Name())
}

func TestFileRepositoryReadsPartialDocuments(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, err := NewFileRepository(fs, "/data")
	require.NoError(t, err)
	doc := `{"favorites":["x"],"chatHistory":[{"message":"hi"}]}`
	require.NoError(t, afero.WriteFile(fs, "/data/u2.json", []byte(doc), 0o644))

	lib, err := repo.Load(context.Background(), "u2")
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, lib.Favorites)
	require.NotNil(t, lib.Watchlist)
	require.NotNil(t, lib.WatchProgress)
}

func TestFileRepositoryRejectsCorruptDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, err := NewFileRepository(fs, "/data")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/data/u3.json", []byte("{not json"), 0o644))

	_, err = repo.Load(context.Background(), "u3")
	require.Error(t, err)
}

// fakeDB stores JSONB rows in memory.
type fakeDB struct {
	rows map[string][]byte
	err  error
}

type fakeRow struct {
	data []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return json.Unmarshal(r.data, dest[0])
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if f.err != nil {
		return fakeRow{err: f.err}
	}
	data, ok := f.rows[args[0].(string)]
	if strings.Contains(sql, "EXISTS") {
		return fakeRow{data: []byte(strconv.FormatBool(ok))}
	}
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{data: data}
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	data, err := json.Marshal(args[1])
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	f.rows[args[0].(string)] = data
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestPostgresRepository(t *testing.T) {
	db := &fakeDB{rows: map[string][]byte{}}
	repo := NewPostgresRepository(db)
	ctx := context.Background()

	lib, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.NewLibrary(), lib)
	exists, err := repo.Exists(ctx, "u1")
	require.NoError(t, err)
	require.False(t, exists)

	lib.Watchlist = []string{"w"}
	require.NoError(t, repo.Save(ctx, "u1", lib))
	exists, err = repo.Exists(ctx, "u1")
	require.NoError(t, err)
	require.True(t, exists)

	got, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"w"}, got.Watchlist)

	db.err = errors.New("connection refused")
	_, err = repo.Load(ctx, "u1")
	require.ErrorContains(t, err, "connection refused")
	require.ErrorContains(t, repo.Save(ctx, "u1", lib), "connection refused")
}

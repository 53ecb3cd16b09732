package videos

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cinehome/backend/internal/mediatype"
	"github.com/cinehome/backend/internal/models"
)

// Store is the filesystem-backed video registry. It exclusively owns dir.
// The index mirrors the directory: one scan at startup, then kept current by
// Create and Delete. File I/O never happens under mu.
type Store struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger

	mu    sync.RWMutex
	index map[string]models.Video
}

// NewStore creates dir if needed and indexes the videos already in it.
func NewStore(fs afero.Fs, dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create video dir: %w", err)
	}
	s := &Store{fs: fs, dir: dir, logger: logger, index: make(map[string]models.Video)}
	if err := s.Rescan(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the directory the store owns.
func (s *Store) Dir() string { return s.dir }

// Rescan rebuilds the index from the directory. Hidden and partially written files,
// directories and unsupported extensions are skipped.
func (s *Store) Rescan() error {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return fmt.Errorf("scan video dir: %w", err)
	}
	index := make(map[string]models.Video, len(entries))
	for _, fi := range entries {
		name := fi.Name()
		if fi.IsDir() || strings.HasPrefix(name, ".") || !mediatype.Allowed(name) {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		index[id] = models.Video{
			ID:        id,
			Name:      name,
			Filename:  name,
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
	}
	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	s.logger.Info("video index loaded", zap.String("dir", s.dir), zap.Int("videos", len(index)))
	return nil
}

// Create persists src under a fresh id. The upload is written to a hidden temp file and
// renamed into place, so List and Resolve never observe a partial file. Size and creation
// time are read back from the filesystem.
func (s *Store) Create(ctx context.Context, originalName string, src io.Reader) (models.Video, error) {
	if !mediatype.Allowed(originalName) {
		return models.Video{}, fmt.Errorf("%w: %q", ErrUnsupportedExtension, originalName)
	}
	id := uuid.NewString()
	filename := id + "." + mediatype.Ext(originalName)
	dst := filepath.Join(s.dir, filename)

	tmp, err := afero.TempFile(s.fs, s.dir, "."+filename+".part-*")
	if err != nil {
		return models.Video{}, ioError("create", dst, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = s.fs.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, &contextReader{ctx: ctx, r: src}); err != nil {
		if ctx.Err() != nil {
			return models.Video{}, fmt.Errorf("write %s: %w", dst, ctx.Err())
		}
		return models.Video{}, ioError("write", dst, err)
	}
	if err := tmp.Sync(); err != nil {
		return models.Video{}, ioError("sync", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return models.Video{}, ioError("close", dst, err)
	}
	if err := s.fs.Rename(tmpName, dst); err != nil {
		return models.Video{}, ioError("rename", dst, err)
	}
	committed = true

	fi, err := s.fs.Stat(dst)
	if err != nil {
		return models.Video{}, ioError("stat", dst, err)
	}
	v := models.Video{
		ID:        id,
		Name:      SanitizeFilename(originalName, filename),
		Filename:  filename,
		Size:      fi.Size(),
		CreatedAt: fi.ModTime(),
	}
	s.mu.Lock()
	s.index[id] = v
	s.mu.Unlock()

	s.logger.Info("video stored", zap.String("video_id", id), zap.String("filename", filename), zap.Int64("size", v.Size))
	return v, nil
}

// List returns every indexed video ordered by creation time, then id.
func (s *Store) List(_ context.Context) []models.Video {
	s.mu.RLock()
	list := lo.Values(s.index)
	s.mu.RUnlock()

	slices.SortFunc(list, func(a, b models.Video) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return list
}

// Count returns the number of indexed videos.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Resolve returns the video with id and its path. The file is stat'ed so Size is the
// current size; a file removed behind the store's back drops out of the index.
func (s *Store) Resolve(_ context.Context, id string) (models.Video, string, error) {
	s.mu.RLock()
	v, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return models.Video{}, "", ErrNotFound
	}

	p := filepath.Join(s.dir, v.Filename)
	fi, err := s.fs.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.forget(id, v.Filename)
			return models.Video{}, "", ErrNotFound
		}
		return models.Video{}, "", ioError("stat", p, err)
	}
	v.Size = fi.Size()
	return v, p, nil
}

// Delete removes the video with id and returns its stored filename.
func (s *Store) Delete(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	v, ok := s.index[id]
	delete(s.index, id)
	s.mu.Unlock()
	if !ok {
		return "", ErrNotFound
	}

	p := filepath.Join(s.dir, v.Filename)
	if err := s.fs.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		s.mu.Lock()
		s.index[id] = v
		s.mu.Unlock()
		return "", ioError("remove", p, err)
	}
	s.logger.Info("video deleted", zap.String("video_id", id), zap.String("filename", v.Filename))
	return v.Filename, nil
}

func (s *Store) forget(id, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.index[id]; ok && cur.Filename == filename {
		delete(s.index, id)
	}
}

// SanitizeFilename makes an uploaded name safe to record as metadata: path separators
// become underscores and leading dots are trimmed. It never influences the on-disk path.
// fallback is returned when nothing printable remains.
func SanitizeFilename(name, fallback string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, name)
	name = strings.TrimLeft(strings.TrimSpace(name), ".")
	if name == "" {
		return fallback
	}
	return name
}

// contextReader stops an upload copy once the request is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Package library keeps each user's favorites, watchlist, recently watched list and
// playback progress.
package library

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/cinehome/backend/internal/models"
)

// DefaultRecentLimit bounds the recently watched list when no limit is configured.
const DefaultRecentLimit = 20

var (
	// ErrInvalidUserID is returned for user ids that are not UUIDs.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrInvalidInput is returned for a missing video id or an unusable progress value.
	ErrInvalidInput = errors.New("invalid input")
)

// VideoCounter reports how many videos the store holds (implemented by *videos.Store).
type VideoCounter interface {
	Count() int
}

// Patch replaces the top-level fields that are present. Absent fields are left alone.
type Patch struct {
	Favorites     *[]string           `json:"favorites"`
	Watchlist     *[]string           `json:"watchlist"`
	RecentVideos  *[]string           `json:"recentVideos"`
	WatchProgress *map[string]float64 `json:"watchProgress"`
}

// Service implements the library operations. Read-modify-write cycles are serialized
// per user; a user's lock lives only while someone holds or waits for it.
type Service struct {
	repo        Repository
	videos      VideoCounter
	recentLimit int
	logger      *zap.Logger

	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a library service.
func NewService(repo Repository, videos VideoCounter, recentLimit int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	return &Service{
		repo:        repo,
		videos:      videos,
		recentLimit: recentLimit,
		logger:      logger,
		locks:       make(map[string]*userLock),
	}
}

func (s *Service) lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

func checkUser(userID string) (string, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return id.String(), nil
}

func checkVideo(videoID string) (string, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return "", fmt.Errorf("%w: video_id is required", ErrInvalidInput)
	}
	return videoID, nil
}

// Create starts an empty library under a fresh user id.
func (s *Service) Create(ctx context.Context) (string, error) {
	userID := uuid.NewString()
	if err := s.repo.Save(ctx, userID, models.NewLibrary()); err != nil {
		return "", err
	}
	s.logger.Info("library created", zap.String("user_id", userID))
	return userID, nil
}

// Get returns the whole library.
func (s *Service) Get(ctx context.Context, userID string) (*models.Library, error) {
	userID, err := checkUser(userID)
	if err != nil {
		return nil, err
	}
	return s.repo.Load(ctx, userID)
}

// Exists reports whether userID has a saved library, i.e. a session from Create.
func (s *Service) Exists(ctx context.Context, userID string) (bool, error) {
	userID, err := checkUser(userID)
	if err != nil {
		return false, err
	}
	return s.repo.Exists(ctx, userID)
}

// update loads, applies fn and saves when fn reports a change.
func (s *Service) update(ctx context.Context, userID string, fn func(*models.Library) bool) (*models.Library, error) {
	userID, err := checkUser(userID)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(userID)
	defer unlock()

	lib, err := s.repo.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !fn(lib) {
		return lib, nil
	}
	if err := s.repo.Save(ctx, userID, lib); err != nil {
		return nil, err
	}
	return lib, nil
}

func addTo(list []string, videoID string) ([]string, bool) {
	if lo.Contains(list, videoID) {
		return list, false
	}
	return append(list, videoID), true
}

func removeFrom(list []string, videoID string) ([]string, bool) {
	if !lo.Contains(list, videoID) {
		return list, false
	}
	return lo.Without(list, videoID), true
}

// AddFavorite appends videoID to favorites unless it is already there.
func (s *Service) AddFavorite(ctx context.Context, userID, videoID string) ([]string, error) {
	return s.editList(ctx, userID, videoID, func(l *models.Library, id string) bool {
		var changed bool
		l.Favorites, changed = addTo(l.Favorites, id)
		return changed
	}, func(l *models.Library) []string { return l.Favorites })
}

// RemoveFavorite drops videoID from favorites.
func (s *Service) RemoveFavorite(ctx context.Context, userID, videoID string) ([]string, error) {
	return s.editList(ctx, userID, videoID, func(l *models.Library, id string) bool {
		var changed bool
		l.Favorites, changed = removeFrom(l.Favorites, id)
		return changed
	}, func(l *models.Library) []string { return l.Favorites })
}

// AddToWatchlist appends videoID to the watchlist unless it is already there.
func (s *Service) AddToWatchlist(ctx context.Context, userID, videoID string) ([]string, error) {
	return s.editList(ctx, userID, videoID, func(l *models.Library, id string) bool {
		var changed bool
		l.Watchlist, changed = addTo(l.Watchlist, id)
		return changed
	}, func(l *models.Library) []string { return l.Watchlist })
}

// RemoveFromWatchlist drops videoID from the watchlist.
func (s *Service) RemoveFromWatchlist(ctx context.Context, userID, videoID string) ([]string, error) {
	return s.editList(ctx, userID, videoID, func(l *models.Library, id string) bool {
		var changed bool
		l.Watchlist, changed = removeFrom(l.Watchlist, id)
		return changed
	}, func(l *models.Library) []string { return l.Watchlist })
}

// PushRecent moves videoID to the front of the recently watched list, keeping at most
// the configured number of entries.
func (s *Service) PushRecent(ctx context.Context, userID, videoID string) ([]string, error) {
	return s.editList(ctx, userID, videoID, func(l *models.Library, id string) bool {
		recent := append([]string{id}, lo.Without(l.RecentVideos, id)...)
		l.RecentVideos = recent[:min(len(recent), s.recentLimit)]
		return true
	}, func(l *models.Library) []string { return l.RecentVideos })
}

func (s *Service) editList(ctx context.Context, userID, videoID string, edit func(*models.Library, string) bool, pick func(*models.Library) []string) ([]string, error) {
	videoID, err := checkVideo(videoID)
	if err != nil {
		return nil, err
	}
	lib, err := s.update(ctx, userID, func(l *models.Library) bool { return edit(l, videoID) })
	if err != nil {
		return nil, err
	}
	return pick(lib), nil
}

// SetProgress records playback progress for videoID.
func (s *Service) SetProgress(ctx context.Context, userID, videoID string, progress float64) error {
	videoID, err := checkVideo(videoID)
	if err != nil {
		return err
	}
	if math.IsNaN(progress) || math.IsInf(progress, 0) || progress < 0 {
		return fmt.Errorf("%w: progress must be a non-negative number", ErrInvalidInput)
	}
	_, err = s.update(ctx, userID, func(l *models.Library) bool {
		l.WatchProgress[videoID] = progress
		return true
	})
	return err
}

// Merge replaces the top-level fields present in p.
func (s *Service) Merge(ctx context.Context, userID string, p Patch) (*models.Library, error) {
	return s.update(ctx, userID, func(l *models.Library) bool {
		if p.Favorites != nil {
			l.Favorites = *p.Favorites
		}
		if p.Watchlist != nil {
			l.Watchlist = *p.Watchlist
		}
		if p.RecentVideos != nil {
			l.RecentVideos = *p.RecentVideos
		}
		if p.WatchProgress != nil {
			l.WatchProgress = *p.WatchProgress
		}
		l.Normalize()
		return true
	})
}

// Stats summarizes the library against the number of stored videos.
func (s *Service) Stats(ctx context.Context, userID string) (models.LibraryStats, error) {
	lib, err := s.Get(ctx, userID)
	if err != nil {
		return models.LibraryStats{}, err
	}
	total := 0
	if s.videos != nil {
		total = s.videos.Count()
	}
	watched := len(lib.WatchProgress)
	pct := 0.0
	if total > 0 {
		pct = math.Round(float64(watched)/float64(total)*100*100) / 100
	}
	return models.LibraryStats{
		TotalVideos:       total,
		TotalWatched:      watched,
		TotalFavorites:    len(lib.Favorites),
		WatchlistSize:     len(lib.Watchlist),
		PercentageWatched: pct,
	}, nil
}

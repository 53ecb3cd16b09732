package models

// Library is a user's personal blob: saved lists and playback progress keyed by Video.ID.
// It is read and written wholesale.
type Library struct {
	Favorites     []string           `json:"favorites"`
	Watchlist     []string           `json:"watchlist"`
	RecentVideos  []string           `json:"recentVideos"`
	WatchProgress map[string]float64 `json:"watchProgress"`
}

// NewLibrary returns an empty library with non-nil collections so it encodes as [] and {}.
func NewLibrary() *Library {
	return &Library{
		Favorites:     []string{},
		Watchlist:     []string{},
		RecentVideos:  []string{},
		WatchProgress: map[string]float64{},
	}
}

// Normalize replaces nil collections left by partial JSON documents.
func (l *Library) Normalize() {
	if l.Favorites == nil {
		l.Favorites = []string{}
	}
	if l.Watchlist == nil {
		l.Watchlist = []string{}
	}
	if l.RecentVideos == nil {
		l.RecentVideos = []string{}
	}
	if l.WatchProgress == nil {
		l.WatchProgress = map[string]float64{}
	}
}

// LibraryStats summarizes a library against the current video count.
type LibraryStats struct {
	TotalVideos       int     `json:"totalVideos"`
	TotalWatched      int     `json:"totalWatched"`
	TotalFavorites    int     `json:"totalFavorites"`
	WatchlistSize     int     `json:"watchlistSize"`
	PercentageWatched float64 `json:"percentageWatched"`
}

package library

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cinehome/backend/pkg/response"
)

// VideoRequest is the body for list edits.
type VideoRequest struct {
	VideoID string `json:"video_id" form:"video_id"`
}

// ProgressRequest is the body for POST /api/users/:id/progress.
type ProgressRequest struct {
	VideoID  string   `json:"video_id" binding:"required"`
	Progress *float64 `json:"progress" binding:"required"`
}

// Handler handles library HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a library handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// fail maps service errors to responses.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidUserID):
		response.BadRequest(c, "invalid user id")
	case errors.Is(err, ErrInvalidInput):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("library operation", zap.String("path", c.FullPath()), zap.String("user_id", c.Param("id")), zap.Error(err))
		response.Internal(c, "failed to update library")
	}
}

// videoID reads video_id from a JSON body, falling back to the query string for
// clients that cannot send a body with DELETE.
func videoID(c *gin.Context) string {
	var req VideoRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	if req.VideoID == "" {
		req.VideoID = c.Query("video_id")
	}
	return req.VideoID
}

// Create handles POST /api/users.
func (h *Handler) Create(c *gin.Context) {
	userID, err := h.svc.Create(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"user_id": userID})
}

// Session handles GET /api/auth/session/:id: 200 {valid: true} when the id was handed
// out by Create, 401 {valid: false} otherwise.
func (h *Handler) Session(c *gin.Context) {
	ok, err := h.svc.Exists(c.Request.Context(), c.Param("id"))
	if err != nil && !errors.Is(err, ErrInvalidUserID) {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Body{Data: gin.H{"valid": false}, Error: "unknown session"})
		return
	}
	response.OK(c, gin.H{"valid": true})
}

// Favorites handles GET /api/users/:id/favorites.
func (h *Handler) Favorites(c *gin.Context) {
	lib, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"favorites": lib.Favorites})
}

// AddFavorite handles POST /api/users/:id/favorites.
func (h *Handler) AddFavorite(c *gin.Context) {
	list, err := h.svc.AddFavorite(c.Request.Context(), c.Param("id"), videoID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"status": "added", "favorites": list})
}

// RemoveFavorite handles DELETE /api/users/:id/favorites.
func (h *Handler) RemoveFavorite(c *gin.Context) {
	list, err := h.svc.RemoveFavorite(c.Request.Context(), c.Param("id"), videoID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"status": "removed", "favorites": list})
}

// Watchlist handles GET /api/users/:id/watchlist.
func (h *Handler) Watchlist(c *gin.Context) {
	lib, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"watchlist": lib.Watchlist})
}

// AddToWatchlist handles POST /api/users/:id/watchlist.
func (h *Handler) AddToWatchlist(c *gin.Context) {
	list, err := h.svc.AddToWatchlist(c.Request.Context(), c.Param("id"), videoID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"status": "added", "watchlist": list})
}

// RemoveFromWatchlist handles DELETE /api/users/:id/watchlist.
func (h *Handler) RemoveFromWatchlist(c *gin.Context) {
	list, err := h.svc.RemoveFromWatchlist(c.Request.Context(), c.Param("id"), videoID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"status": "removed", "watchlist": list})
}

// Recent handles GET /api/users/:id/recent.
func (h *Handler) Recent(c *gin.Context) {
	lib, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"recentVideos": lib.RecentVideos})
}

// PushRecent handles POST /api/users/:id/recent.
func (h *Handler) PushRecent(c *gin.Context) {
	list, err := h.svc.PushRecent(c.Request.Context(), c.Param("id"), videoID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"status": "added", "recentVideos": list})
}

// Progress handles GET /api/users/:id/progress.
func (h *Handler) Progress(c *gin.Context) {
	lib, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"watchProgress": lib.WatchProgress})
}

// SetProgress handles POST /api/users/:id/progress.
func (h *Handler) SetProgress(c *gin.Context) {
	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.svc.SetProgress(c.Request.Context(), c.Param("id"), req.VideoID, *req.Progress); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"status": "updated", "progress": *req.Progress})
}

// Data handles GET /api/users/:id/data.
func (h *Handler) Data(c *gin.Context) {
	lib, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, lib)
}

// MergeData handles POST /api/users/:id/data.
func (h *Handler) MergeData(c *gin.Context) {
	var p Patch
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&p); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	lib, err := h.svc.Merge(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"status": "saved", "data": lib})
}

// Stats handles GET /api/users/:id/stats.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, stats)
}

package library

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(newTestService(t, 4, 0), nil)

	r := gin.New()
	r.POST("/api/users", h.Create)
	r.GET("/api/auth/session/:id", h.Session)
	u := r.Group("/api/users/:id")
	u.GET("/favorites", h.Favorites)
	u.POST("/favorites", h.AddFavorite)
	u.DELETE("/favorites", h.RemoveFavorite)
	u.GET("/watchlist", h.Watchlist)
	u.POST("/watchlist", h.AddToWatchlist)
	u.DELETE("/watchlist", h.RemoveFromWatchlist)
	u.GET("/recent", h.Recent)
	u.POST("/recent", h.PushRecent)
	u.GET("/progress", h.Progress)
	u.POST("/progress", h.SetProgress)
	u.GET("/data", h.Data)
	u.POST("/data", h.MergeData)
	u.GET("/stats", h.Stats)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestHandlerCreateUser(t *testing.T) {
	r := newTestRouter(t)

	w, env := do(t, r, http.MethodPost, "/api/users", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var data struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	_, err := uuid.Parse(data.UserID)
	require.NoError(t, err)
}

func TestHandlerFavoritesFlow(t *testing.T) {
	r := newTestRouter(t)
	base := "/api/users/" + uuid.NewString() + "/favorites"

	w, env := do(t, r, http.MethodPost, base, gin.H{"video_id": "v1"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.JSONEq(t, `{"status":"added","favorites":["v1"]}`, string(env.Data))

	w, env = do(t, r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"favorites":["v1"]}`, string(env.Data))

	w, env = do(t, r, http.MethodDelete, base+"?video_id=v1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"removed","favorites":[]}`, string(env.Data))

	w, env = do(t, r, http.MethodPost, base, gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, env.Success)
}

func TestHandlerInvalidUser(t *testing.T) {
	r := newTestRouter(t)

	w, env := do(t, r, http.MethodGet, "/api/users/not-a-uuid/favorites", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid user id", env.Error)
}

func TestHandlerRecentAndProgress(t *testing.T) {
	r := newTestRouter(t)
	base := "/api/users/" + uuid.NewString()

	do(t, r, http.MethodPost, base+"/recent", gin.H{"video_id": "a"})
	w, env := do(t, r, http.MethodPost, base+"/recent", gin.H{"video_id": "b"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.JSONEq(t, `{"status":"added","recentVideos":["b","a"]}`, string(env.Data))

	w, env = do(t, r, http.MethodPost, base+"/progress", gin.H{"video_id": "a", "progress": 0})
	require.Equal(t, http.StatusCreated, w.Code)
	require.JSONEq(t, `{"status":"updated","progress":0}`, string(env.Data))

	w, _ = do(t, r, http.MethodPost, base+"/progress", gin.H{"video_id": "a"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	_, env = do(t, r, http.MethodGet, base+"/progress", nil)
	require.JSONEq(t, `{"watchProgress":{"a":0}}`, string(env.Data))

	_, env = do(t, r, http.MethodGet, base+"/stats", nil)
	require.JSONEq(t, `{"totalVideos":4,"totalWatched":1,"totalFavorites":0,"watchlistSize":0,"percentageWatched":25}`, string(env.Data))
}

func TestHandlerDataMerge(t *testing.T) {
	r := newTestRouter(t)
	base := "/api/users/" + uuid.NewString() + "/data"

	w, env := do(t, r, http.MethodPost, base, gin.H{"watchlist": []string{"x"}, "theme": "dark"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.JSONEq(t, `{"status":"saved","data":{"favorites":[],"watchlist":["x"],"recentVideos":[],"watchProgress":{}}}`, string(env.Data))

	_, env = do(t, r, http.MethodGet, base, nil)
	require.JSONEq(t, `{"favorites":[],"watchlist":["x"],"recentVideos":[],"watchProgress":{}}`, string(env.Data))
}

func TestHandlerSession(t *testing.T) {
	r := newTestRouter(t)

	_, env := do(t, r, http.MethodPost, "/api/users", nil)
	var created struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	w, env := do(t, r, http.MethodGet, "/api/auth/session/"+created.UserID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"valid":true}`, string(env.Data))

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		w, env = do(t, r, http.MethodGet, "/api/auth/session/"+id, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code, id)
		require.False(t, env.Success)
		require.JSONEq(t, `{"valid":false}`, string(env.Data))
	}
}

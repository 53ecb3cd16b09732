package router

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/cinehome/backend/internal/chunked"
	"github.com/cinehome/backend/internal/library"
	"github.com/cinehome/backend/internal/realtime"
	"github.com/cinehome/backend/internal/videos"
)

type testApp struct {
	engine *gin.Engine
	store  *videos.Store
	hub    *realtime.Hub
}

func newTestApp(t *testing.T, origins string) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fs := afero.NewMemMapFs()

	store, err := videos.NewStore(fs, "/videos", nil)
	require.NoError(t, err)
	vh := videos.NewHandler(store, chunked.NewEmitter(fs, 4096), nil)

	repo, err := library.NewFileRepository(fs, "/user_data")
	require.NoError(t, err)
	lh := library.NewHandler(library.NewService(repo, store, 20, nil), nil)

	hub := realtime.NewHub(nil, nil, nil)
	vh.SetNotifier(hub)

	return &testApp{
		engine: New(Deps{AllowedOrigins: origins, Videos: vh, Library: lh, Hub: hub}),
		store:  store,
		hub:    hub,
	}
}

func (a *testApp) do(method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, "*")
	w := app.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true,"data":{"status":"ok"}}`, w.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	app := newTestApp(t, "*")
	w := app.do(http.MethodGet, "/api/nothing/here", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.JSONEq(t, `{"success":false,"error":"endpoint not found"}`, w.Body.String())
}

func TestJSONRoutePreflight(t *testing.T) {
	app := newTestApp(t, "http://app.test")

	w := app.do(http.MethodOptions, "/api/videos", map[string]string{"Origin": "http://app.test"})
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "http://app.test", w.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")

	w = app.do(http.MethodOptions, "/api/videos/delete/abc", map[string]string{"Origin": "http://app.test"})
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")

	w = app.do(http.MethodGet, "/api/videos", map[string]string{"Origin": "http://evil.test"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamRoutesIgnoreOriginList(t *testing.T) {
	app := newTestApp(t, "http://app.test")

	w := app.do(http.MethodOptions, "/api/videos/abc", map[string]string{"Origin": "http://other.test"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, HEAD, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))

	w = app.do(http.MethodGet, "/api/videos/stream/abc", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func upload(t *testing.T, app *testApp, name string, content []byte) videos.UploadResult {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("user_id", "u1"))
	part, err := mw.CreateFormFile("files[]", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/videos/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data videos.UploadResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func TestLegacyAliases(t *testing.T) {
	app := newTestApp(t, "*")
	res := upload(t, app, "trailer.m4v", []byte("0123456789"))
	v := res.Uploaded[0]

	w := app.do(http.MethodGet, "/api/videos/list", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), v.ID)

	w = app.do(http.MethodGet, "/api/videos/stream/"+v.ID, map[string]string{"Range": "bytes=2-5"})
	require.Equal(t, http.StatusPartialContent, w.Code)
	require.Equal(t, "2345", w.Body.String())
	require.Equal(t, "video/x-m4v", w.Header().Get("Content-Type"))

	w = app.do(http.MethodDelete, "/api/videos/delete/"+v.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(http.MethodGet, "/api/videos/"+v.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestLibraryStatsCountsVideos(t *testing.T) {
	app := newTestApp(t, "*")
	upload(t, app, "a.mp4", []byte("a"))
	upload(t, app, "b.mp4", []byte("b"))

	w := app.do(http.MethodGet, "/api/users/2f0c6a4e-7f43-4a43-9d0e-3c1f0a3b6d11/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true,"data":{"totalVideos":2,"totalWatched":0,"totalFavorites":0,"watchlistSize":0,"percentageWatched":0}}`, w.Body.String())
}

func TestFeedReceivesLibraryEvents(t *testing.T) {
	app := newTestApp(t, "*")
	srv := httptest.NewServer(app.engine)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return app.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	res := upload(t, app, "feed.mp4", []byte("feed"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg realtime.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, realtime.EventVideoCreated, msg.Event)
	require.Contains(t, string(msg.Data), res.Uploaded[0].ID)

	require.NoError(t, conn.WriteJSON(realtime.WSMessage{Event: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "pong", msg.Event)
}

func (a *testApp) doJSON(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func TestLibraryLegacyAliases(t *testing.T) {
	app := newTestApp(t, "*")

	w := app.doJSON(http.MethodPost, "/api/auth/register", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data struct {
			UserID string `json:"user_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	user := created.Data.UserID

	w = app.do(http.MethodGet, "/api/auth/session/"+user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true,"data":{"valid":true}}`, w.Body.String())

	w = app.do(http.MethodGet, "/api/auth/session/2f0c6a4e-7f43-4a43-9d0e-3c1f0a3b6d11", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.doJSON(http.MethodPost, "/api/user/"+user+"/favorites", map[string]string{"video_id": "v1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = app.doJSON(http.MethodPost, "/api/user/"+user+"/watchlist", map[string]string{"video_id": "v2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = app.do(http.MethodGet, "/api/users/"+user+"/favorites", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"v1"`)

	for _, path := range []string{"watchlist", "recent", "progress", "data", "stats"} {
		w = app.do(http.MethodGet, "/api/user/"+user+"/"+path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
	}

	w = app.do(http.MethodOptions, "/api/user/"+user+"/favorites", map[string]string{"Origin": "http://app.test"})
	require.Equal(t, http.StatusNoContent, w.Code)
}

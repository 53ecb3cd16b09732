// Package router wires the HTTP routes onto a gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cinehome/backend/internal/library"
	"github.com/cinehome/backend/internal/middleware"
	"github.com/cinehome/backend/internal/realtime"
	"github.com/cinehome/backend/internal/videos"
	"github.com/cinehome/backend/pkg/response"
)

// Deps are the handlers the router mounts. Hub may be nil, which leaves /ws unmounted.
type Deps struct {
	Logger         *zap.Logger
	AllowedOrigins string
	Videos         *videos.Handler
	Library        *library.Handler
	Hub            *realtime.Hub
}

// routes maps an HTTP method to its handler.
type routes map[string]gin.HandlerFunc

// preflight is the OPTIONS handler for JSON routes; middleware.CORS has already answered.
func preflight(*gin.Context) {}

// New builds the engine. Stream routes carry their own open CORS policy and answer
// OPTIONS themselves, so CORS is applied per group rather than globally.
func New(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.NoRoute(func(c *gin.Context) { response.NotFound(c, "endpoint not found") })

	r.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := r.Group("/api", middleware.CORS(d.AllowedOrigins))
	{
		v := d.Videos
		jsonRoute(api, "/videos", routes{"POST": v.Upload, "GET": v.List})
		jsonRoute(api, "/videos/upload", routes{"POST": v.Upload})
		jsonRoute(api, "/videos/list", routes{"GET": v.List})
		// DELETE preflight is served on the legacy path; OPTIONS /api/videos/:id belongs
		// to the stream.
		api.DELETE("/videos/:id", v.Delete)
		jsonRoute(api, "/videos/delete/:id", routes{"DELETE": v.Delete})
		jsonRoute(api, "/videos/:id/mirror", routes{"GET": v.MirrorURL})

		l := d.Library
		jsonRoute(api, "/users", routes{"POST": l.Create})
		jsonRoute(api, "/auth/register", routes{"POST": l.Create})
		jsonRoute(api, "/auth/session/:id", routes{"GET": l.Session})
		// /api/user/:id is the path older clients use.
		for _, prefix := range []string{"/users/:id", "/user/:id"} {
			jsonRoute(api, prefix+"/favorites", routes{"GET": l.Favorites, "POST": l.AddFavorite, "DELETE": l.RemoveFavorite})
			jsonRoute(api, prefix+"/watchlist", routes{"GET": l.Watchlist, "POST": l.AddToWatchlist, "DELETE": l.RemoveFromWatchlist})
			jsonRoute(api, prefix+"/recent", routes{"GET": l.Recent, "POST": l.PushRecent})
			jsonRoute(api, prefix+"/progress", routes{"GET": l.Progress, "POST": l.SetProgress})
			jsonRoute(api, prefix+"/data", routes{"GET": l.Data, "POST": l.MergeData})
			jsonRoute(api, prefix+"/stats", routes{"GET": l.Stats})
		}
	}

	for _, prefix := range []string{"/api/videos", "/api/videos/stream"} {
		stream := r.Group(prefix, middleware.StreamCORS())
		stream.GET("/:id", d.Videos.Stream)
		stream.HEAD("/:id", d.Videos.Head)
		stream.OPTIONS("/:id", d.Videos.Options)
	}

	if d.Hub != nil {
		r.GET("/ws", realtime.ServeWs(d.Hub, logger))
	}
	return r
}

// jsonRoute registers each method handler on path plus an OPTIONS preflight.
func jsonRoute(g *gin.RouterGroup, path string, handlers routes) {
	for method, h := range handlers {
		g.Handle(method, path, h)
	}
	g.OPTIONS(path, preflight)
}

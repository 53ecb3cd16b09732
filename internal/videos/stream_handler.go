package videos

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cinehome/backend/internal/byterange"
	"github.com/cinehome/backend/internal/chunked"
	"github.com/cinehome/backend/internal/mediatype"
	"github.com/cinehome/backend/internal/models"
	"github.com/cinehome/backend/pkg/response"
)

const (
	streamCacheControl = "public, max-age=3600"
	preflightMaxAge    = "86400"
)

// Stream handles GET /api/videos/:id. Without a Range header the whole file is sent
// with 200; a satisfiable range gets 206 and only that window; anything else is 416.
func (h *Handler) Stream(c *gin.Context) {
	id := c.Param("id")
	v, path, ok := h.resolve(c, id)
	if !ok {
		return
	}

	outcome := byterange.Negotiate(c.GetHeader("Range"), v.Size)
	// The full body is bounded by the size just resolved, so a file that shrinks
	// mid-stream surfaces chunked.ErrTruncated instead of ending short silently.
	status := http.StatusOK
	window := chunked.Window{Length: v.Size}
	length := v.Size

	switch outcome.Kind {
	case byterange.Unsatisfiable:
		c.Header("Content-Range", byterange.UnsatisfiedRange(v.Size))
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	case byterange.Partial:
		status = http.StatusPartialContent
		window = chunked.Window{Offset: outcome.Range.Start, Length: outcome.Range.Length()}
		length = outcome.Range.Length()
		c.Header("Content-Range", outcome.Range.ContentRange())
	}

	h.setEntityHeaders(c, v, length)
	c.Header("Cache-Control", streamCacheControl)
	c.Status(status)
	h.emit(c, v, path, window)
}

// Head handles HEAD /api/videos/:id: the headers of a full GET and no body.
func (h *Handler) Head(c *gin.Context) {
	v, _, ok := h.resolve(c, c.Param("id"))
	if !ok {
		return
	}
	h.setEntityHeaders(c, v, v.Size)
	c.Status(http.StatusOK)
}

// Options answers the stream preflight.
func (h *Handler) Options(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Range, Content-Type, Accept")
	c.Header("Access-Control-Max-Age", preflightMaxAge)
	c.Status(http.StatusOK)
}

func (h *Handler) setEntityHeaders(c *gin.Context, v models.Video, length int64) {
	c.Header("Content-Type", mediatype.ForFilename(v.Filename))
	c.Header("Content-Length", strconv.FormatInt(length, 10))
	c.Header("Accept-Ranges", "bytes")
}

// emit copies window to the client chunk by chunk, flushing after each. Once the first
// byte has gone out the status can no longer change, so a later failure only ends the
// response short of Content-Length and the server drops the connection.
func (h *Handler) emit(c *gin.Context, v models.Video, path string, window chunked.Window) {
	ctx := c.Request.Context()
	for chunk, err := range h.emitter.Emit(ctx, path, window) {
		if err != nil {
			if ctx.Err() != nil {
				h.logger.Debug("stream cancelled", zap.String("video_id", v.ID))
				return
			}
			h.logger.Error("stream video",
				zap.String("video_id", v.ID),
				zap.String("path", path),
				zap.Int64("offset", window.Offset),
				zap.Int("written", c.Writer.Size()),
				zap.Error(err),
			)
			if !c.Writer.Written() {
				for _, k := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "Cache-Control"} {
					c.Writer.Header().Del(k)
				}
				response.Internal(c, "failed to read video")
			}
			return
		}
		if _, err := c.Writer.Write(chunk); err != nil {
			h.logger.Debug("client went away", zap.String("video_id", v.ID), zap.Error(err))
			return
		}
		c.Writer.Flush()
	}
}

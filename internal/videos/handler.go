package videos

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	conciter "github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/cinehome/backend/internal/chunked"
	"github.com/cinehome/backend/internal/mediatype"
	"github.com/cinehome/backend/internal/models"
	"github.com/cinehome/backend/internal/realtime"
	"github.com/cinehome/backend/pkg/queue"
	"github.com/cinehome/backend/pkg/response"
	"github.com/cinehome/backend/pkg/storage"
)

// multipartMemory is how much of an upload is buffered in memory before spilling to disk.
const multipartMemory = 32 << 20

// Notifier announces library changes to feed subscribers (implemented by *realtime.Hub).
type Notifier interface {
	Notify(ctx context.Context, event string, payload interface{}) error
}

// Enqueuer schedules mirror jobs (implemented by *queue.Queue).
type Enqueuer interface {
	EnqueueMirror(ctx context.Context, payload queue.MirrorPayload) error
	EnqueuePurge(ctx context.Context, payload queue.MirrorPayload) error
}

// MirrorLinker hands out download links for mirrored videos (implemented by *storage.S3).
type MirrorLinker interface {
	Exists(ctx context.Context, key string) (bool, error)
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
}

// Handler serves the video HTTP endpoints.
type Handler struct {
	store     *Store
	emitter   *chunked.Emitter
	logger    *zap.Logger
	maxUpload int64
	notifier  Notifier
	jobs      Enqueuer
	mirror    MirrorLinker
}

// NewHandler creates a videos handler.
func NewHandler(store *Store, emitter *chunked.Emitter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, emitter: emitter, logger: logger}
}

// SetMaxUploadBytes caps the size of an upload request body. Zero means no cap.
func (h *Handler) SetMaxUploadBytes(n int64) { h.maxUpload = n }

// SetNotifier sets the library feed to notify on create and delete.
func (h *Handler) SetNotifier(n Notifier) { h.notifier = n }

// SetEnqueuer sets the queue receiving mirror jobs.
func (h *Handler) SetEnqueuer(e Enqueuer) { h.jobs = e }

// SetMirror sets the mirror bucket used for download links.
func (h *Handler) SetMirror(m MirrorLinker) { h.mirror = m }

// UploadResult is the body of a successful upload.
type UploadResult struct {
	Uploaded []models.Video `json:"uploaded"`
	Count    int            `json:"count"`
	Rejected []string       `json:"rejected"`
}

type fileOutcome struct {
	name  string
	video models.Video
	err   error
}

// Upload handles POST /api/videos: one or more multipart files under "files[]" or "files".
func (h *Handler) Upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			response.RequestEntityTooLarge(c, "upload exceeds size limit")
			return
		}
		response.BadRequest(c, "invalid multipart form")
		return
	}
	form := c.Request.MultipartForm
	defer func() { _ = form.RemoveAll() }()

	if strings.TrimSpace(c.Request.PostFormValue("user_id")) == "" {
		response.BadRequest(c, "user_id is required")
		return
	}
	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["files"]
	}
	if len(files) == 0 {
		response.BadRequest(c, "no files provided")
		return
	}

	ctx := c.Request.Context()
	outcomes := conciter.Map(files, func(fh **multipart.FileHeader) fileOutcome {
		return h.persist(ctx, *fh)
	})

	result := UploadResult{Uploaded: []models.Video{}, Rejected: []string{}}
	ioFailures := 0
	for _, o := range outcomes {
		switch {
		case o.err == nil:
			result.Uploaded = append(result.Uploaded, o.video)
		case errors.Is(o.err, ErrUnsupportedExtension):
			result.Rejected = append(result.Rejected, o.name)
		default:
			ioFailures++
			result.Rejected = append(result.Rejected, o.name)
			h.logger.Error("store upload", zap.String("filename", o.name), zap.Error(o.err))
		}
	}
	result.Count = len(result.Uploaded)

	if result.Count == 0 {
		if ioFailures > 0 {
			response.Internal(c, "failed to store video")
			return
		}
		response.BadRequest(c, "no valid video files (allowed: "+strings.Join(mediatype.Extensions(), ", ")+")")
		return
	}

	for _, v := range result.Uploaded {
		h.announce(ctx, realtime.EventVideoCreated, v)
		h.enqueue(ctx, queue.JobTypeMirrorUpload, v.ID, v.Filename)
	}
	response.Created(c, result)
}

func (h *Handler) persist(ctx context.Context, fh *multipart.FileHeader) fileOutcome {
	out := fileOutcome{name: fh.Filename}
	src, err := fh.Open()
	if err != nil {
		out.err = ioError("open upload", fh.Filename, err)
		return out
	}
	defer src.Close()
	out.video, out.err = h.store.Create(ctx, fh.Filename, src)
	return out
}

// List handles GET /api/videos.
func (h *Handler) List(c *gin.Context) {
	response.OK(c, gin.H{"videos": h.store.List(c.Request.Context())})
}

// Delete handles DELETE /api/videos/:id.
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	filename, err := h.store.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "video not found")
			return
		}
		h.logger.Error("delete video", zap.String("video_id", id), zap.Error(err))
		response.Internal(c, "failed to delete video")
		return
	}

	h.announce(ctx, realtime.EventVideoDeleted, gin.H{"id": id, "filename": filename})
	h.enqueue(ctx, queue.JobTypeMirrorPurge, id, filename)
	response.OK(c, gin.H{"deleted": filename})
}

// MirrorURL handles GET /api/videos/:id/mirror: a pre-signed link to the mirrored copy.
func (h *Handler) MirrorURL(c *gin.Context) {
	if h.mirror == nil {
		response.ServiceUnavailable(c, "mirror not configured")
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()
	v, _, ok := h.resolve(c, id)
	if !ok {
		return
	}

	key := storage.VideoKey(v.Filename)
	exists, err := h.mirror.Exists(ctx, key)
	if err != nil {
		h.logger.Warn("mirror lookup", zap.String("video_id", id), zap.Error(err))
		response.ServiceUnavailable(c, "mirror unavailable")
		return
	}
	if !exists {
		response.NotFound(c, "video not mirrored yet")
		return
	}
	url, err := h.mirror.PresignedDownloadURL(ctx, key)
	if err != nil {
		h.logger.Error("presign mirror url", zap.String("video_id", id), zap.Error(err))
		response.Internal(c, "failed to create download url")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in": int(h.mirror.PresignExpire().Seconds())})
}

// resolve looks up id and writes the error response itself when it fails.
func (h *Handler) resolve(c *gin.Context, id string) (models.Video, string, bool) {
	v, path, err := h.store.Resolve(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "video not found")
			return models.Video{}, "", false
		}
		h.logger.Error("resolve video", zap.String("video_id", id), zap.Error(err))
		response.Internal(c, "failed to read video")
		return models.Video{}, "", false
	}
	return v, path, true
}

func (h *Handler) announce(ctx context.Context, event string, payload interface{}) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx, event, payload); err != nil {
		h.logger.Warn("library feed notify", zap.String("event", event), zap.Error(err))
	}
}

func (h *Handler) enqueue(ctx context.Context, t queue.JobType, id, filename string) {
	if h.jobs == nil {
		return
	}
	payload := queue.MirrorPayload{VideoID: id, Filename: filename}
	var err error
	if t == queue.JobTypeMirrorPurge {
		err = h.jobs.EnqueuePurge(ctx, payload)
	} else {
		err = h.jobs.EnqueueMirror(ctx, payload)
	}
	if err != nil {
		h.logger.Warn("enqueue mirror job", zap.String("type", string(t)), zap.String("video_id", id), zap.Error(err))
	}
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) ||
		errors.Is(err, multipart.ErrMessageTooLarge) ||
		strings.Contains(err.Error(), "request body too large")
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cinehome/backend/internal/mediatype"
	"github.com/cinehome/backend/pkg/queue"
	"github.com/cinehome/backend/pkg/storage"
)

// errBadJob marks a job that can never succeed. Run drops it instead of re-queueing.
var errBadJob = errors.New("bad mirror job")

// ObjectStore is the mirror bucket (implemented by *storage.S3).
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// JobSource feeds jobs to the worker loop (implemented by *queue.Queue).
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// MirrorProcessor copies stored videos to the mirror bucket and purges deleted ones.
type MirrorProcessor struct {
	fs       afero.Fs
	videoDir string
	store    ObjectStore
	jobs     JobSource
	logger   *zap.Logger

	attempts uint
	delay    time.Duration
	backoff  time.Duration
}

// NewMirrorProcessor creates a mirror processor reading videos from videoDir.
func NewMirrorProcessor(fs afero.Fs, videoDir string, store ObjectStore, jobs JobSource, logger *zap.Logger) *MirrorProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MirrorProcessor{
		fs:       fs,
		videoDir: videoDir,
		store:    store,
		jobs:     jobs,
		logger:   logger,
		attempts: 3,
		delay:    2 * time.Second,
		backoff:  queue.RetryBackoff,
	}
}

// Process executes one mirror job. S3 calls are retried in place; a job that still
// fails is handed back to the queue by Run. Undecodable payloads, filenames that are
// not bare base names and unknown job types fail with errBadJob.
func (p *MirrorProcessor) Process(ctx context.Context, job *queue.Job) error {
	var payload queue.MirrorPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %w", errBadJob, err)
	}
	if payload.Filename == "" || filepath.Base(payload.Filename) != payload.Filename {
		return fmt.Errorf("%w: invalid filename %q", errBadJob, payload.Filename)
	}
	key := storage.VideoKey(payload.Filename)

	switch job.Type {
	case queue.JobTypeMirrorUpload:
		return p.upload(ctx, payload, key)
	case queue.JobTypeMirrorPurge:
		err := p.withRetry(ctx, func() error { return p.store.DeleteObject(ctx, key) })
		if err != nil {
			return fmt.Errorf("purge %s: %w", key, err)
		}
		p.logger.Info("mirror purged", zap.String("video_id", payload.VideoID), zap.String("s3_key", key))
		return nil
	default:
		return fmt.Errorf("%w: unknown job type %s", errBadJob, job.Type)
	}
}

func (p *MirrorProcessor) upload(ctx context.Context, payload queue.MirrorPayload, key string) error {
	path := filepath.Join(p.videoDir, payload.Filename)
	contentType := mediatype.ForFilename(payload.Filename)

	var location string
	err := p.withRetry(ctx, func() error {
		f, err := p.fs.Open(path)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		defer f.Close()
		fi, err := f.Stat()
		if err != nil {
			return retry.Unrecoverable(err)
		}
		location, err = p.store.Upload(ctx, key, contentType, f, fi.Size())
		return err
	})
	if errors.Is(err, os.ErrNotExist) {
		// Deleted before the job ran; the purge job takes care of the bucket.
		p.logger.Info("mirror skipped, video gone", zap.String("video_id", payload.VideoID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("mirror %s: %w", key, err)
	}
	p.logger.Info("mirror uploaded",
		zap.String("video_id", payload.VideoID),
		zap.String("s3_key", key),
		zap.String("location", location),
	)
	return nil
}

func (p *MirrorProcessor) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("s3 call failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *MirrorProcessor) Run(ctx context.Context) {
	p.logger.Info("mirror worker started", zap.String("video_dir", p.videoDir))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("mirror worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, p.backoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			if errors.Is(err, errBadJob) {
				p.logger.Warn("job dropped", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Error(err))
				continue
			}
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.jobs.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			sleep(ctx, p.backoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

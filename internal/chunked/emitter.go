// Package chunked emits a window of a stored file as a lazy, forward-only sequence of
// fixed-size chunks.
package chunked

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/spf13/afero"
)

// DefaultChunkSize is used when the emitter is configured with a non-positive size.
const DefaultChunkSize = 1 << 20

// ErrTruncated is yielded when the file ends before the requested window is exhausted,
// e.g. because it was truncated while being streamed.
var ErrTruncated = errors.New("file ended before the requested window")

// Window selects Length bytes starting at Offset. A negative Length reads to EOF.
type Window struct {
	Offset int64
	Length int64
}

// Whole selects the entire file.
func Whole() Window { return Window{Length: -1} }

// Emitter opens files from fs for the duration of a single emission.
type Emitter struct {
	fs        afero.Fs
	chunkSize int
}

// NewEmitter creates an emitter reading chunkSize bytes per step.
func NewEmitter(fs afero.Fs, chunkSize int) *Emitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Emitter{fs: fs, chunkSize: chunkSize}
}

// ChunkSize returns the configured chunk size.
func (e *Emitter) ChunkSize() int { return e.chunkSize }

// Emit returns the chunks of window in path. The file is opened on the first pull and
// closed when the sequence ends, when the consumer stops early, or on error. A yielded
// chunk is only valid until the next step. An error, if any, is the last element.
func (e *Emitter) Emit(ctx context.Context, path string, window Window) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		f, err := e.fs.Open(path)
		if err != nil {
			yield(nil, fmt.Errorf("open %s: %w", path, err))
			return
		}
		defer f.Close()

		if window.Offset > 0 {
			if _, err := f.Seek(window.Offset, io.SeekStart); err != nil {
				yield(nil, fmt.Errorf("seek %s: %w", path, err))
				return
			}
		}

		remaining := window.Length
		buf := make([]byte, e.chunkSize)
		for remaining != 0 {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			n := len(buf)
			if remaining > 0 && remaining < int64(n) {
				n = int(remaining)
			}
			read, err := io.ReadFull(f, buf[:n])
			if read > 0 {
				if remaining > 0 {
					remaining -= int64(read)
				}
				if !yield(buf[:read], nil) {
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					if remaining > 0 {
						yield(nil, fmt.Errorf("%s: %w", path, ErrTruncated))
					}
					return
				}
				yield(nil, fmt.Errorf("read %s: %w", path, err))
				return
			}
		}
	}
}

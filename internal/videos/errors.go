package videos

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedExtension rejects uploads whose filename is not an accepted video type.
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	// ErrNotFound is returned when no stored video has the requested id.
	ErrNotFound = errors.New("video not found")
	// ErrIO marks a disk read or write failure. It is never retried.
	ErrIO = errors.New("video store i/o failure")
)

func ioError(op, path string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, path, ErrIO, err)
}

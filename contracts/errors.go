package contracts

import (
	"errors"
	"fmt"
)

var (
	ErrUnreadableImage          = errors.New("unreadable image")
	ErrInvalidDimensions        = errors.New("invalid dimensions")
	ErrMissingServiceDescriptor = errors.New("missing image service descriptor")
	ErrWriteFailure             = errors.New("write failure")
	ErrInconsistentGraph        = errors.New("inconsistent manifest graph")
	ErrEngineUnavailable        = errors.New("image engine unavailable")
)

// ImageError reports a failure while processing a single image.
// errors.Is matches both the Kind sentinel and the wrapped cause.
type ImageError struct {
	Kind    error
	ImageID string
	Err     error
}

func NewImageError(kind error, imageID string, err error) *ImageError {
	return &ImageError{Kind: kind, ImageID: imageID, Err: err}
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image %s: %v: %v", e.ImageID, e.Kind, e.Err)
	}
	return fmt.Sprintf("image %s: %v", e.ImageID, e.Kind)
}

func (e *ImageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Kind returns the sentinel kind of err, or nil when err is not one of the
// known per-image or manifest failures.
func Kind(err error) error {
	for _, kind := range []error{
		ErrUnreadableImage,
		ErrInvalidDimensions,
		ErrWriteFailure,
		ErrMissingServiceDescriptor,
		ErrInconsistentGraph,
		ErrEngineUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

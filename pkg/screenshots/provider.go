package screenshots

import (
	"context"
	"time"
)

// CaptureProvider produces screenshot frames for the capturer.
type CaptureProvider interface {
	Grab(context.Context) (FrameCapture, error)
}

// CaptureProviderFunc adapts a function literal to the CaptureProvider interface.
type CaptureProviderFunc func(context.Context) (FrameCapture, error)

// Grab calls the underlying function.
func (f CaptureProviderFunc) Grab(ctx context.Context) (FrameCapture, error) {
	return f(ctx)
}

// FrameCapture bundles the encoded PNG bytes with metadata.
type FrameCapture struct {
	PNG      []byte
	Metadata Metadata
}

// Metadata describes a captured frame.
type Metadata struct {
	CapturedAt time.Time
	Backend    string
	Display    int
	Width      int
	Height     int
}

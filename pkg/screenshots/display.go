package screenshots

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/kbinani/screenshot"

	"github.com/y1024/agi-computer-control/pkg/permissions"
)

const providerDisplay = "display"

// DisplayOptions configures the native display provider.
type DisplayOptions struct {
	Display int
	Clock   func() time.Time
	Lookup  permissions.LookupEnvFunc
}

// DisplayProvider grabs a full still of one attached display.
type DisplayProvider struct {
	display int
	clock   func() time.Time
	lookup  permissions.LookupEnvFunc

	// swapped in tests
	count   func() int
	capture func(int) (*image.RGBA, error)
}

// NewDisplayProvider returns a provider for the display at the given index.
func NewDisplayProvider(opts DisplayOptions) *DisplayProvider {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &DisplayProvider{
		display: opts.Display,
		clock:   clock,
		lookup:  opts.Lookup,
		count:   screenshot.NumActiveDisplays,
		capture: screenshot.CaptureDisplay,
	}
}

// Grab captures the display and encodes it as PNG.
func (p *DisplayProvider) Grab(ctx context.Context) (FrameCapture, error) {
	probe := permissions.ProbeScreenRecording(p.lookup)
	switch probe.Status {
	case permissions.StatusDenied:
		return FrameCapture{}, newPermissionError(probe.Message)
	case permissions.StatusUnavailable:
		return FrameCapture{}, fmt.Errorf("%w: %s", ErrNoDisplay, probe.Message)
	}
	if n := p.count(); p.display < 0 || p.display >= n {
		return FrameCapture{}, fmt.Errorf("%w: display %d of %d", ErrNoDisplay, p.display, n)
	}
	if err := ctx.Err(); err != nil {
		return FrameCapture{}, err
	}

	capturedAt := p.clock().UTC()
	img, err := p.capture(p.display)
	if err != nil {
		return FrameCapture{}, fmt.Errorf("capture display %d: %w", p.display, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return FrameCapture{}, fmt.Errorf("encode png: %w", err)
	}
	bounds := img.Bounds()
	return FrameCapture{
		PNG: buf.Bytes(),
		Metadata: Metadata{
			CapturedAt: capturedAt,
			Backend:    providerDisplay,
			Display:    p.display,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		},
	}, nil
}

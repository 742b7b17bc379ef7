//go:build !cgo

package events

import (
	"context"
	"fmt"
)

const providerHook = "unavailable"

// NewKeyboardListener returns a listener that reports the missing hook backend.
func NewKeyboardListener(opts ListenerOptions) Listener {
	return unavailableListener{device: DeviceKeyboard}
}

// NewPointerListener returns a listener that reports the missing hook backend.
func NewPointerListener(opts ListenerOptions) Listener {
	return unavailableListener{device: DevicePointer}
}

type unavailableListener struct {
	device Device
}

func (l unavailableListener) Listen(ctx context.Context, emit func(Record) error) error {
	return fmt.Errorf("%w: %s capture requires a cgo build", ErrHookUnavailable, l.device)
}

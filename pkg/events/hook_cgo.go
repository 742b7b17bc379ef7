//go:build cgo

package events

import (
	"context"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

const (
	providerHook     = "libuiohook"
	wheelHorizontal  = 4
	subscriberBuffer = 256
)

// The native hook is process global, so both listeners share one hub that
// starts the hook for the first subscriber and stops it after the last.
var globalHub = newHookHub(hook.Start, hook.End)

type subscriber struct {
	device Device
	ch     chan hookEvent
	done   chan struct{}
}

type hookHub struct {
	mu    sync.Mutex
	subs  map[*subscriber]struct{}
	stop  chan struct{}
	start func() chan hook.Event
	end   func()
}

func newHookHub(start func() chan hook.Event, end func()) *hookHub {
	return &hookHub{subs: make(map[*subscriber]struct{}), start: start, end: end}
}

func (h *hookHub) subscribe(device Device) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &subscriber{
		device: device,
		ch:     make(chan hookEvent, subscriberBuffer),
		done:   make(chan struct{}),
	}
	if len(h.subs) == 0 {
		h.stop = make(chan struct{})
		go h.dispatch(h.start(), h.stop)
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *hookHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.done)
	if len(h.subs) == 0 {
		close(h.stop)
		h.end()
	}
}

func (h *hookHub) dispatch(native chan hook.Event, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-native:
			if !ok {
				return
			}
			translated, ok := translateHook(ev)
			if !ok {
				continue
			}
			h.mu.Lock()
			targets := make([]*subscriber, 0, len(h.subs))
			for sub := range h.subs {
				if sub.device == translated.device() {
					targets = append(targets, sub)
				}
			}
			h.mu.Unlock()
			for _, sub := range targets {
				select {
				case sub.ch <- translated:
				case <-sub.done:
				case <-stop:
					return
				}
			}
		}
	}
}

func translateHook(ev hook.Event) (hookEvent, bool) {
	switch ev.Kind {
	case hook.KeyHold:
		return hookEvent{action: actionKeyDown, key: keyName(hook.RawcodetoKeychar(ev.Rawcode), ev.Rawcode)}, true
	case hook.KeyUp:
		return hookEvent{action: actionKeyUp, key: keyName(hook.RawcodetoKeychar(ev.Rawcode), ev.Rawcode)}, true
	case hook.MouseHold:
		return hookEvent{action: actionButtonDown, button: buttonName(ev.Button), x: int(ev.X), y: int(ev.Y)}, true
	case hook.MouseDown:
		return hookEvent{action: actionButtonUp, button: buttonName(ev.Button), x: int(ev.X), y: int(ev.Y)}, true
	case hook.MouseMove, hook.MouseDrag:
		return hookEvent{action: actionMove, x: int(ev.X), y: int(ev.Y)}, true
	case hook.MouseWheel:
		dx, dy := wheelDeltas(int(ev.Rotation), ev.Direction == wheelHorizontal)
		return hookEvent{action: actionWheel, x: int(ev.X), y: int(ev.Y), dx: dx, dy: dy}, true
	}
	return hookEvent{}, false
}

type hookListener struct {
	device Device
	clock  func() time.Time
	opts   ListenerOptions
}

// NewKeyboardListener returns a listener for key press and release events.
func NewKeyboardListener(opts ListenerOptions) Listener {
	return newHookListener(DeviceKeyboard, opts)
}

// NewPointerListener returns a listener for pointer motion, button and wheel events.
func NewPointerListener(opts ListenerOptions) Listener {
	return newHookListener(DevicePointer, opts)
}

func newHookListener(device Device, opts ListenerOptions) hookListener {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return hookListener{device: device, clock: clock, opts: opts}
}

func (l hookListener) Listen(ctx context.Context, emit func(Record) error) error {
	if err := checkHookAccess(l.opts.Lookup); err != nil {
		return err
	}
	sub := globalHub.subscribe(l.device)
	defer globalHub.unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-sub.ch:
			if err := emit(ev.record(l.clock().UTC())); err != nil {
				return err
			}
		}
	}
}

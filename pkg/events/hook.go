package events

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/y1024/agi-computer-control/pkg/permissions"
)

// Device selects which half of the global hook a listener consumes.
type Device int

const (
	DeviceKeyboard Device = iota
	DevicePointer
)

func (d Device) String() string {
	if d == DeviceKeyboard {
		return "keyboard"
	}
	return "pointer"
}

// ListenerOptions configures a hook backed listener.
type ListenerOptions struct {
	Clock  func() time.Time
	Lookup permissions.LookupEnvFunc
}

type hookAction int

const (
	actionKeyDown hookAction = iota
	actionKeyUp
	actionButtonDown
	actionButtonUp
	actionMove
	actionWheel
)

// hookEvent is the backend neutral shape of a native hook callback.
type hookEvent struct {
	action hookAction
	key    string
	button string
	x, y   int
	dx, dy int
}

func (e hookEvent) device() Device {
	if e.action == actionKeyDown || e.action == actionKeyUp {
		return DeviceKeyboard
	}
	return DevicePointer
}

func (e hookEvent) record(at time.Time) Record {
	switch e.action {
	case actionKeyDown:
		return KeyPress{Key: e.key, At: at}
	case actionKeyUp:
		return KeyRelease{Key: e.key, At: at}
	case actionButtonDown:
		return PointerClick{X: e.x, Y: e.y, Button: e.button, Pressed: true, At: at}
	case actionButtonUp:
		return PointerClick{X: e.x, Y: e.y, Button: e.button, Pressed: false, At: at}
	case actionWheel:
		return PointerScroll{X: e.x, Y: e.y, DX: e.dx, DY: e.dy, At: at}
	default:
		return PointerMove{X: e.x, Y: e.y, At: at}
	}
}

// checkHookAccess fails fast when the host cannot deliver global input events.
func checkHookAccess(lookup permissions.LookupEnvFunc) error {
	probe := permissions.ProbeAccessibility(lookup)
	switch probe.Status {
	case permissions.StatusDenied:
		return fmt.Errorf("%w: %s", ErrAccessibilityPermission, probe.Message)
	case permissions.StatusUnavailable:
		return fmt.Errorf("%w: %s", ErrHookUnavailable, probe.Message)
	}
	return nil
}

// keyName renders a key the way the event logs expect: printable keys as the
// character itself, named keys as "Key.<name>", anything else by raw code.
func keyName(name string, rawcode uint16) string {
	switch {
	case name == "":
		return fmt.Sprintf("<%d>", rawcode)
	case utf8.RuneCountInString(name) == 1:
		return name
	default:
		return "Key." + name
	}
}

func buttonName(button uint16) string {
	switch button {
	case 1:
		return "Button.left"
	case 2:
		return "Button.right"
	case 3:
		return "Button.middle"
	case 4:
		return "Button.x1"
	case 5:
		return "Button.x2"
	default:
		return fmt.Sprintf("Button.unknown%d", button)
	}
}

// wheelDeltas converts a native wheel rotation into dx/dy steps where a
// positive dy scrolls up.
func wheelDeltas(rotation int, horizontal bool) (dx, dy int) {
	if horizontal {
		return rotation, 0
	}
	return 0, -rotation
}

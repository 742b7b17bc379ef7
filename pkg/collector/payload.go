// Package collector implements both ends of the upload contract: the client
// the worker uses to reach a collector and a collector sink that accepts
// the uploads.
package collector

import "errors"

// Endpoint paths.
const (
	PathPing       = "/ping"
	PathMouse      = "/mouse"
	PathKeyboard   = "/keyboard"
	PathScreenshot = "/screenshot"
)

// HeaderCycle carries the upload cycle identifier on every request.
const HeaderCycle = "X-Upload-Cycle"

// ErrUnexpectedStatus is returned when the collector answers outside 2xx.
var ErrUnexpectedStatus = errors.New("unexpected collector status")

// MousePayload is the body of POST /mouse.
type MousePayload struct {
	Mouse     string `json:"mouse"`
	ClientKey string `json:"client_key"`
}

// KeyboardPayload is the body of POST /keyboard.
type KeyboardPayload struct {
	Keyboard  string `json:"keyboard"`
	ClientKey string `json:"client_key"`
}

// ScreenshotPayload is the body of POST /screenshot.
type ScreenshotPayload struct {
	ScreenshotBase64   string `json:"screenshot_base64"`
	ScreenshotFilename string `json:"screenshot_filename"`
	ClientKey          string `json:"client_key"`
}

// Message is the collector's acknowledgement body.
type Message struct {
	Message string `json:"message"`
}

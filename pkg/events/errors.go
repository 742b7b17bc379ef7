package events

import "errors"

var (
	// ErrHookUnavailable indicates no global input hook can be installed on this host.
	ErrHookUnavailable = errors.New("global input hook unavailable")
	// ErrAccessibilityPermission indicates the host must grant input monitoring access.
	ErrAccessibilityPermission = errors.New("accessibility permission required for event capture")
)

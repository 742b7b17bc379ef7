package events

import "testing"

func TestDetectEnvironmentSetsFields(t *testing.T) {
	env := DetectEnvironment(nil)
	if env.Provider == "" {
		t.Fatalf("expected provider")
	}
	if env.Permission == "" {
		t.Fatalf("expected permission status")
	}
	if env.Message == "" {
		t.Fatalf("expected message")
	}
}

func TestDetectEnvironmentHonoursDeniedOverride(t *testing.T) {
	env := DetectEnvironment(func(key string) (string, bool) {
		if key == "CAPTURE_ACCESSIBILITY" {
			return "denied", true
		}
		return "", false
	})
	if env.Available {
		t.Fatalf("expected capture unavailable when accessibility is denied")
	}
	if env.Permission != "denied" {
		t.Fatalf("expected denied permission, got %s", env.Permission)
	}
}

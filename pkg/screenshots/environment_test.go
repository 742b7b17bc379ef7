package screenshots

import "testing"

func TestDetectEnvironmentPopulatesFields(t *testing.T) {
	env := DetectEnvironment(func(key string) (string, bool) {
		return "denied", key == "CAPTURE_SCREEN_RECORDING"
	})
	if env.Provider == "" {
		t.Fatalf("expected provider name")
	}
	if env.Permission != "denied" {
		t.Fatalf("expected denied permission, got %q", env.Permission)
	}
	if env.Available {
		t.Fatalf("expected capture unavailable when denied")
	}
	if env.Message == "" {
		t.Fatalf("expected message")
	}
}

package logging

import "testing"

func TestNewAcceptsKnownLevels(t *testing.T) {
	for _, tc := range []struct {
		level  string
		format string
	}{
		{"info", "json"},
		{"debug", "console"},
		{"warn", ""},
	} {
		logger, err := New(tc.level, tc.format)
		if err != nil {
			t.Fatalf("New(%q, %q) err: %v", tc.level, tc.format, err)
		}
		_ = logger.Sync()
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

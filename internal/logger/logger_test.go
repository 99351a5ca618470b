package logger

import "testing"

func TestSetLevel(t *testing.T) {
	log, err := New(Config{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	child := log.WithComponent("privacy")
	if err := log.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	if child.Level() != "debug" {
		t.Errorf("Derived logger should share level, got %s", child.Level())
	}

	if err := log.SetLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestSafeHeaders(t *testing.T) {
	headers := map[string][]string{
		"Authorization": {"Bearer secret"},
		"X-Api-Key":     {"sk-123"},
		"Content-Type":  {"application/json"},
		"X-Auth-Token":  {"t-1"},
		"Cookie":        {"session=1"},
		"X-Visit-Id":    {},
	}

	safe := SafeHeaders(headers)
	if safe["Authorization"] != "[REDACTED]" {
		t.Errorf("Authorization not redacted: %q", safe["Authorization"])
	}
	if safe["X-Api-Key"] != "[REDACTED]" {
		t.Errorf("X-Api-Key not redacted: %q", safe["X-Api-Key"])
	}
	if safe["X-Auth-Token"] != "[REDACTED]" || safe["Cookie"] != "[REDACTED]" {
		t.Errorf("Token headers not redacted: %v", safe)
	}
	if _, ok := safe["X-Visit-Id"]; ok {
		t.Error("Empty header should be dropped")
	}
	if safe["Content-Type"] != "application/json" {
		t.Errorf("Content-Type changed: %q", safe["Content-Type"])
	}
}

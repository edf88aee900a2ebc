package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestRedactEmail(t *testing.T) {
	cases := map[string]string{
		"joao@example.com": "jo***@example.com",
		"a@x.io":           "***@x.io",
		"+5511999998888":   "***8888",
	}
	for in, want := range cases {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoggerMasksSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	log.Info("calling provider", "api_key", "sk-live-123", "unsubscribe_token", "abc.def", "channel", "EMAIL")

	out := buf.String()
	if strings.Contains(out, "sk-live-123") || strings.Contains(out, "abc.def") {
		t.Fatalf("expected secrets to be masked, got %s", out)
	}
	if !strings.Contains(out, `"channel":"EMAIL"`) {
		t.Fatalf("expected non-sensitive attrs to be kept, got %s", out)
	}
}

func TestPolicyViolationIsHighSeverity(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	log.PolicyViolation("cadence.execute", "channel_paused", "channel", "EMAIL")

	out := buf.String()
	for _, want := range []string{`"level":"ERROR"`, `"severity":"high"`, `"reason":"channel_paused"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

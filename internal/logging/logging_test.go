package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetupWriter_json(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")
	defer SetupWriter(&bytes.Buffer{}, "info", "text")

	logrus.WithField("component", "portal").Debug("handshake")
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "handshake" || line["component"] != "portal" || line["level"] != "debug" {
		t.Errorf("line = %v", line)
	}
}

func TestSetupWriter_unknownLevel(t *testing.T) {
	SetupWriter(&bytes.Buffer{}, "chatty", "text")
	if logrus.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", logrus.GetLevel())
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("ABCDEF123456"); got != "ABCDEF..." {
		t.Errorf("Redact = %q", got)
	}
	if got := Redact("abc"); got != "***" {
		t.Errorf("Redact short = %q", got)
	}
}

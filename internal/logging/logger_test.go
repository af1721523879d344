package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewParsesLevel(t *testing.T) {
	cases := []struct {
		level string
		want  logrus.Level
	}{
		{level: "debug", want: logrus.DebugLevel},
		{level: "warn", want: logrus.WarnLevel},
		{level: "", want: logrus.InfoLevel},
		{level: "nonsense", want: logrus.InfoLevel},
	}
	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			logger := New(Options{Level: tc.level})
			if logger.GetLevel() != tc.want {
				t.Fatalf("level = %v, want %v", logger.GetLevel(), tc.want)
			}
		})
	}
}

func TestNewWritesJSONWithService(t *testing.T) {
	logger := New(Options{Level: "info", Service: "taskflow-api"})
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.WithField("workspace_id", "ws_1").Info("workspace created")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["message"] != "workspace created" {
		t.Fatalf("message = %v", line["message"])
	}
	if line["service"] != "taskflow-api" {
		t.Fatalf("service = %v", line["service"])
	}
	if line["workspace_id"] != "ws_1" {
		t.Fatalf("workspace_id = %v", line["workspace_id"])
	}
}

func TestNewWithFileOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "api.log")
	logger := New(Options{Level: "info", File: file})
	logger.Info("hello")
}

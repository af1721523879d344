package blob

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestObjectKeySanitizesFileName(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		suffix string
	}{
		{name: "plain", input: "report.pdf", suffix: "-report.pdf"},
		{name: "spaces", input: "my report (1).pdf", suffix: "-my_report__1_.pdf"},
		{name: "path traversal", input: "../../etc/passwd", suffix: "-passwd"},
		{name: "windows path", input: `C:\Users\me\notes.txt`, suffix: "-notes.txt"},
		{name: "only dots", input: "..", suffix: "-file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := ObjectKey("task_1", tc.input)
			if !strings.HasPrefix(key, "tasks/task_1/") {
				t.Fatalf("key = %q, want tasks/task_1/ prefix", key)
			}
			if !strings.HasSuffix(key, tc.suffix) {
				t.Fatalf("key = %q, want suffix %q", key, tc.suffix)
			}
		})
	}
}

func TestPresignUploadIsOffline(t *testing.T) {
	store, err := New(Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio-secret",
		Bucket:    "attachments",
		URLTTL:    5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	raw, err := store.PresignUpload(context.Background(), "tasks/task_1/abc-report.pdf")
	if err != nil {
		t.Fatalf("PresignUpload() error = %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Host != "localhost:9000" || u.Path != "/attachments/tasks/task_1/abc-report.pdf" {
		t.Fatalf("unexpected url %s", raw)
	}
	if u.Query().Get("X-Amz-Expires") != "300" {
		t.Fatalf("X-Amz-Expires = %q", u.Query().Get("X-Amz-Expires"))
	}
	if got := store.ObjectURL("tasks/task_1/abc-report.pdf"); got != "http://localhost:9000/attachments/tasks/task_1/abc-report.pdf" {
		t.Fatalf("ObjectURL() = %q", got)
	}
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	if _, err := New(Config{Bucket: "b"}); err == nil {
		t.Fatal("expected error without endpoint")
	}
	if _, err := New(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

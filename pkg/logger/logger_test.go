package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithWorkspaceID(ctx, "ws-456")

	log.Error(ctx, "boom", errors.New("boom"))

	if !bytes.Contains(buf.Bytes(), []byte("\"request_id\"")) {
		t.Fatalf("expected request_id to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("\"workspace_id\"")) {
		t.Fatalf("expected workspace_id to be preserved; entry=%s", buf.String())
	}
}

func TestLoggerFieldsDoNotLeakAcrossContexts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	scoped := log.WithEventID(context.Background(), "evt_1")
	log.Info(scoped, "scoped")
	log.Info(context.Background(), "unscoped")

	entries := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(entries) != 2 {
		t.Fatalf("expected two log entries, got %d", len(entries))
	}
	if !bytes.Contains(entries[0], []byte("evt_1")) {
		t.Fatalf("scoped entry missing event id: %s", entries[0])
	}
	if bytes.Contains(entries[1], []byte("evt_1")) {
		t.Fatalf("event id leaked into unscoped entry: %s", entries[1])
	}
}

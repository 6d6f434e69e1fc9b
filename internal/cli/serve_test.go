package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/service"
)

type echoDispatcher struct {
	ops []string
}

func (d *echoDispatcher) Dispatch(_ context.Context, req service.Request) service.Response {
	d.ops = append(d.ops, req.Op)
	return service.Response{ID: req.ID, Result: service.Result{Success: true, Message: req.Op}}
}

func TestServeRequestsAnswersEachLine(t *testing.T) {
	in := strings.NewReader(`{"id":"1","op":"is-downloader-running"}

{"id":"2","op":"verify","args":{"game":"Game"}}
not json
`)
	var out bytes.Buffer
	dispatcher := &echoDispatcher{}

	if err := serveRequests(context.Background(), dispatcher, in, &out, zap.NewNop()); err != nil {
		t.Fatalf("serve: %v", err)
	}

	if strings.Join(dispatcher.ops, ",") != "is-downloader-running,verify" {
		t.Fatalf("unexpected dispatched ops: %v", dispatcher.ops)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 responses, got %d: %q", len(lines), out.String())
	}
	var first service.Response
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first response: %v", err)
	}
	if first.ID != "1" || !first.Success {
		t.Fatalf("unexpected first response: %+v", first)
	}
	var last map[string]any
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatalf("decode last response: %v", err)
	}
	if last["success"] != false || !strings.HasPrefix(last["error"].(string), "malformed request") {
		t.Fatalf("unexpected malformed response: %v", last)
	}
}

func TestServeRequestsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if err := serveRequests(ctx, &echoDispatcher{}, strings.NewReader(""), &out, zap.NewNop()); err != nil {
		t.Fatalf("serve: %v", err)
	}
}

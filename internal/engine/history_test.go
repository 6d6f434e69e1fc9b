package engine

import (
	"path/filepath"
	"testing"
	"time"
)

func TestHistoryAppendAndList(t *testing.T) {
	history := NewHistory(filepath.Join(t.TempDir(), "state", "history.json"))
	history.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	entries, err := history.List()
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %v", entries)
	}

	for _, item := range []string{"Game1", "Game2"} {
		if err := history.Append(item); err != nil {
			t.Fatalf("append %s: %v", item, err)
		}
	}

	entries, err = history.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Game != "Game1" || entries[1].Game != "Game2" {
		t.Fatalf("unexpected history: %+v", entries)
	}
	if !entries[0].Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %s", entries[0].Timestamp)
	}
}

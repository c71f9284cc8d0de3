package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/courier-sim/internal/engine"
)

func readLines(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	var out []Entry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestEventLoggerRoundTripAndRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLogger(dir)
	clock := time.Date(2024, 5, 1, 12, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	first := []engine.Event{
		{Tick: 1, Category: engine.CategoryOrder, Order: "A", Description: "released"},
		{Tick: 2, Category: engine.CategoryDelivery, Courier: "you", Order: "A", Description: "delivered"},
	}
	if err := l.WriteEvents("s1", first); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteEvents("s1", []engine.Event{{Tick: 3, Category: engine.CategoryWeather, Description: "rain"}}); err != nil {
		t.Fatal(err)
	}
	if err := l.WriteEvents("s1", nil); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "events", "events-*.jsonl.zst"))
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(files)
	if len(files) != 2 {
		t.Fatalf("files = %v, want one per hour", files)
	}
	got := readLines(t, files[0])
	if len(got) != 2 || got[1].Courier != "you" || got[1].Session != "s1" {
		t.Fatalf("first hour = %+v", got)
	}
	if got := readLines(t, files[1]); len(got) != 1 || got[0].Category != engine.CategoryWeather {
		t.Fatalf("second hour = %+v", got)
	}
}

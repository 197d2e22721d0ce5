package codebench

import (
	"testing"
	"time"
)

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if id == "" {
			t.Fatal("NewID() returned empty string")
		}
		if seen[id] {
			t.Fatalf("NewID() returned duplicate %s", id)
		}
		seen[id] = true
	}
}

func TestNewIDSortable(t *testing.T) {
	// UUIDv7 is time-ordered; ids generated in sequence sort in sequence.
	a := NewID()
	time.Sleep(2 * time.Millisecond)
	b := NewID()
	if !(a < b) {
		t.Errorf("ids not time-ordered: %s then %s", a, b)
	}
}

func TestNowISO(t *testing.T) {
	ts := NowISO()
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t.Fatalf("NowISO() = %q, not RFC3339: %v", ts, err)
	}
	if parsed.Location() != time.UTC {
		t.Errorf("NowISO() location = %v, want UTC", parsed.Location())
	}
}

package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, ok := s.ScrollOffset("c1"); ok {
		t.Fatal("fresh store should have no offsets")
	}
	if err := s.SaveScrollOffset("c1", 420); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.Dismiss("phone-banner"); err != nil {
		t.Fatalf("dismiss failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got, ok := reopened.ScrollOffset("c1"); !ok || got != 420 {
		t.Errorf("offset = %d,%v, want 420,true", got, ok)
	}
	if !reopened.Dismissed("phone-banner") {
		t.Error("dismissal flag lost across reopen")
	}

	if err := reopened.ClearScrollOffset("c1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, ok := reopened.ScrollOffset("c1"); ok {
		t.Error("offset should be gone after clear")
	}
}

func TestStoreCorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{{{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, ok := s.ScrollOffset("c1"); ok {
		t.Error("corrupt store should read as empty")
	}
	if err := s.SaveScrollOffset("c1", 7); err != nil {
		t.Fatalf("save over corrupt file failed: %v", err)
	}
}

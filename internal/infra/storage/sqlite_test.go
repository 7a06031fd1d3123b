package storage

import (
	"path/filepath"
	"reflect"
	"testing"
)

func setupTestDB(t *testing.T) *Storage {
	s, err := NewStorage(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestAddAndListSymbols(t *testing.T) {
	s := setupTestDB(t)

	added, err := s.AddSymbols([]string{"msft", "AAPL", " aapl "})
	if err != nil {
		t.Fatalf("AddSymbols failed: %v", err)
	}
	if !reflect.DeepEqual(added, []string{"AAPL", "MSFT"}) {
		t.Errorf("expected [AAPL MSFT] added, got %v", added)
	}

	// Second add only reports new symbols
	added, err = s.AddSymbols([]string{"AAPL", "NVDA"})
	if err != nil {
		t.Fatalf("AddSymbols failed: %v", err)
	}
	if !reflect.DeepEqual(added, []string{"NVDA"}) {
		t.Errorf("expected [NVDA] added, got %v", added)
	}

	got, err := s.ListSymbols()
	if err != nil {
		t.Fatalf("ListSymbols failed: %v", err)
	}
	if want := []string{"AAPL", "MSFT", "NVDA"}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestListSymbols_Empty(t *testing.T) {
	s := setupTestDB(t)

	got, err := s.ListSymbols()
	if err != nil {
		t.Fatalf("ListSymbols failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestRemoveSymbols(t *testing.T) {
	s := setupTestDB(t)
	s.AddSymbols([]string{"AAPL", "MSFT"})

	if err := s.RemoveSymbols([]string{"aapl", "TSLA"}); err != nil {
		t.Fatalf("RemoveSymbols failed: %v", err)
	}

	got, _ := s.ListSymbols()
	if !reflect.DeepEqual(got, []string{"MSFT"}) {
		t.Errorf("expected [MSFT], got %v", got)
	}

	entry, err := s.GetEntry("AAPL")
	if err != nil {
		t.Fatalf("GetEntry after delete failed: %v", err)
	}
	if entry != nil {
		t.Error("expected entry to be deleted, but found record")
	}
}

func TestToggleFavoriteAndName(t *testing.T) {
	s := setupTestDB(t)
	s.AddSymbols([]string{"FAV", "ZZZ"})

	isFav, err := s.ToggleFavorite("zzz")
	if err != nil {
		t.Fatalf("ToggleFavorite failed: %v", err)
	}
	if !isFav {
		t.Error("expected IsFavorite to be true")
	}

	if err := s.SetName("ZZZ", "Sleepy Corp"); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}

	entries, err := s.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Symbol != "ZZZ" || entries[0].Name != "Sleepy Corp" {
		t.Errorf("expected favorite ZZZ first, got %+v", entries)
	}

	// Re-adding keeps the favorite flag
	s.AddSymbols([]string{"ZZZ"})
	entry, _ := s.GetEntry("ZZZ")
	if entry == nil || !entry.IsFavorite {
		t.Errorf("favorite lost on re-add: %+v", entry)
	}

	isFav, _ = s.ToggleFavorite("ZZZ")
	if isFav {
		t.Error("expected IsFavorite to be false")
	}

	if _, err := s.ToggleFavorite("MISSING"); err == nil {
		t.Error("expected error for unknown symbol")
	}
}

func TestConfigMap(t *testing.T) {
	s := setupTestDB(t)

	if err := s.SaveConfig("last_sync", "2024-01-01"); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	s.SaveConfig("last_sync", "2024-01-02")
	s.SaveConfig("theme", "dark")

	got, err := s.LoadConfigMap()
	if err != nil {
		t.Fatalf("LoadConfigMap failed: %v", err)
	}
	want := map[string]string{"last_sync": "2024-01-02", "theme": "dark"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

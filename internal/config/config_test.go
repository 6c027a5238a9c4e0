package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{
		Accounts: []AccountConfig{
			{Name: "work", Platform: "mastodon", InstanceURL: "https://example.social"},
		},
		UpdateMinutes: 5,
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Accounts) != 1 || loaded.Accounts[0].Name != "work" {
		t.Errorf("Accounts = %+v, want one account named work", loaded.Accounts)
	}
	if loaded.UpdateMinutes != 5 {
		t.Errorf("UpdateMinutes = %d, want 5", loaded.UpdateMinutes)
	}
	// Defaults should fill unset fields.
	if loaded.PageSize != 40 {
		t.Errorf("PageSize = %d, want default 40", loaded.PageSize)
	}
	if loaded.Template == "" {
		t.Error("Template default not applied")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestPrefsRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "prefs.json")

	p := &Prefs{
		Timelines: []TimelinePref{
			{Kind: "home", Name: "Home"},
			{Kind: "search", Data: "golang", Name: "Search: golang", Mute: true},
		},
		Filters: map[string]FilterPref{
			"home:": {Text: "crypto", Invert: true},
		},
	}
	if err := SavePrefs(path, p); err != nil {
		t.Fatalf("SavePrefs() error = %v", err)
	}

	loaded, err := LoadPrefs(path)
	if err != nil {
		t.Fatalf("LoadPrefs() error = %v", err)
	}
	if len(loaded.Timelines) != 2 {
		t.Fatalf("got %d timelines, want 2", len(loaded.Timelines))
	}
	if !loaded.Timelines[1].Mute {
		t.Error("mute flag lost")
	}
	if loaded.Filters["home:"].Text != "crypto" {
		t.Errorf("filter = %+v, want crypto", loaded.Filters["home:"])
	}
}

func TestLoadPrefsMissingIsEmpty(t *testing.T) {
	p, err := LoadPrefs(filepath.Join(t.TempDir(), "prefs.json"))
	if err != nil {
		t.Fatalf("LoadPrefs() error = %v", err)
	}
	if len(p.Timelines) != 0 {
		t.Errorf("expected empty prefs, got %+v", p)
	}
}

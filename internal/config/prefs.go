package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// TimelinePref records one open timeline for an account.
type TimelinePref struct {
	Kind string `json:"kind"`
	Data string `json:"data,omitempty"` // list id, search query, user id, feed URI...
	Name string `json:"name"`

	Mute bool `json:"mute,omitempty"`
	Read bool `json:"read,omitempty"`
	Hide bool `json:"hide,omitempty"`
}

// FilterPref is a persisted client-side filter, keyed by "kind:data".
type FilterPref struct {
	Text   string `json:"text,omitempty"`
	Author string `json:"author,omitempty"`
	Invert bool   `json:"invert,omitempty"`
}

// Prefs is the per-account prefs.json: which timelines are open plus
// pagination-independent settings. Pagination cursors live in the cache
// metadata, not here.
type Prefs struct {
	Timelines []TimelinePref        `json:"timelines"`
	Filters   map[string]FilterPref `json:"filters,omitempty"`
}

// LoadPrefs reads an account's prefs.json. A missing file yields empty prefs.
func LoadPrefs(path string) (*Prefs, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Prefs{}, nil
	}
	if err != nil {
		return nil, err
	}
	var p Prefs
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePrefs writes an account's prefs.json atomically via a temp file.
func SavePrefs(path string, p *Prefs) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

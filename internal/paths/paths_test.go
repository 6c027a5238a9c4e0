package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAccountDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := AccountDir("main")
	want := filepath.Join(home, ".fastsm", "accounts", "main")
	if got != want {
		t.Errorf("AccountDir(main) = %q, want %q", got, want)
	}
}

func TestCacheDBPath(t *testing.T) {
	got := CacheDBPath("test")
	if !strings.HasSuffix(got, filepath.Join("accounts", "test", "timeline_cache.db")) {
		t.Errorf("CacheDBPath(test) = %q, want suffix accounts/test/timeline_cache.db", got)
	}
}

func TestPrefsPath(t *testing.T) {
	got := PrefsPath("test")
	if !strings.HasSuffix(got, filepath.Join("accounts", "test", "prefs.json")) {
		t.Errorf("PrefsPath(test) = %q, want suffix accounts/test/prefs.json", got)
	}
}

func TestValidateAccountName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-account", false},
		{"valid with underscore", "my_account", false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my account", true},
		{"dot", "my.account", true},
		{"slash", "my/account", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAccountName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAccountName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

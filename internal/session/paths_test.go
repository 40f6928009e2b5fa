package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("default")
	want := filepath.Join(home, ".pigeon", "profiles", "default")
	if got != want {
		t.Errorf("Dir(default) = %q, want %q", got, want)
	}
}

func TestDBPath(t *testing.T) {
	got := DBPath("test")
	if !strings.HasSuffix(got, filepath.Join("profiles", "test", "pigeon.db")) {
		t.Errorf("DBPath(test) = %q, want suffix profiles/test/pigeon.db", got)
	}
}

func TestCacheDir(t *testing.T) {
	got := CacheDir("test")
	if !strings.HasSuffix(got, filepath.Join("profiles", "test", "cache")) {
		t.Errorf("CacheDir(test) = %q, want suffix profiles/test/cache", got)
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"default", "work", "a", "user_1", "a-b-c"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "UPPER", "has space", "ñ", strings.Repeat("a", 65)}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}

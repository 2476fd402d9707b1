package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHistoryDir(t *testing.T) {
	historyDir, err := HistoryDir()
	if err != nil {
		t.Fatalf("HistoryDir() returned error: %v", err)
	}

	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		t.Fatalf("os.UserCacheDir() returned error: %v", err)
	}
	expectedDir := filepath.Join(userCacheDir, ".tsgrammar", "history")
	if historyDir != expectedDir {
		t.Errorf("HistoryDir() = %q, want %q", historyDir, expectedDir)
	}

	info, err := os.Stat(historyDir)
	if err != nil {
		t.Fatalf("Directory was not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("HistoryDir() created a file instead of a directory")
	}
	if mode := info.Mode().Perm(); mode != 0700 {
		t.Errorf("Directory has permissions %v, want %v", mode, os.FileMode(0700))
	}
}

// TestSubdirIdempotent verifies repeated calls return the same path without side effects.
func TestSubdirIdempotent(t *testing.T) {
	dir1, err := BuildDir()
	if err != nil {
		t.Fatalf("First BuildDir() call failed: %v", err)
	}
	dir2, err := BuildDir()
	if err != nil {
		t.Fatalf("Second BuildDir() call failed: %v", err)
	}
	if dir1 != dir2 {
		t.Errorf("BuildDir() not idempotent: %q != %q", dir1, dir2)
	}
}

func TestArtifactDirOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tree-sitter")
	t.Setenv(ArtifactDirEnv, dir)

	got, err := ArtifactDir()
	if err != nil {
		t.Fatalf("ArtifactDir() failed: %v", err)
	}
	if got != dir {
		t.Errorf("ArtifactDir() = %q, want %q", got, dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("override directory not created: %v", err)
	}
}

func TestConfigFile(t *testing.T) {
	path, err := ConfigFile()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("ConfigFile() = %q, want config.toml", path)
	}
}

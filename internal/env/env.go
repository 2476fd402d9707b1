package env

import (
	"os"
	"path/filepath"
)

// ArtifactDirEnv overrides the directory built grammars are registered in.
const ArtifactDirEnv = "TSGRAMMAR_ARTIFACT_DIR"

// WorkDir returns the root of all tsgrammar caches.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".tsgrammar"), nil
}

// HistoryDir returns the directory holding partial bare clones, one per repository.
func HistoryDir() (string, error) {
	return subdir("history")
}

// BuildDir returns the directory holding per-build scratch directories.
func BuildDir() (string, error) {
	return subdir("build")
}

// ArtifactDir returns the registration directory for built grammars.
// ArtifactDirEnv takes precedence over the default under WorkDir.
func ArtifactDir() (string, error) {
	if dir := os.Getenv(ArtifactDirEnv); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
		return dir, nil
	}
	return subdir("grammars")
}

// ConfigFile returns the default configuration file path. The file may not exist.
func ConfigFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tsgrammar", "config.toml"), nil
}

func subdir(name string) (string, error) {
	workDir, err := WorkDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(workDir, name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

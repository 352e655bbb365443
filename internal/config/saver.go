package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

// ErrConfigExists is returned by WriteDefault when a config is present and
// overwriting was not requested.
var ErrConfigExists = errors.New("config file already exists")

// WriteDefault writes the default configuration document to path with an
// atomic write and a .bak of any previous file.
func WriteDefault(path string, force bool) error {
	return Save(DefaultYAML(), path, force)
}

// Save validates data as a configuration document and writes it to path.
func Save(data []byte, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	if _, err := load(data, false); err != nil {
		var invalid *InvalidConfigError
		if errors.As(err, &invalid) {
			invalid.Path = path
		}
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := checkWritePermission(path); err != nil {
		return err
	}

	if err := backupConfig(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create backup: %v\n", err)
	}

	return atomicWrite(path, data)
}

func backupConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.WriteFile(path+".bak", data, 0o600)
}

func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// checkWritePermission verifies we can write to the config path
func checkWritePermission(path string) error {
	dir := filepath.Dir(path)

	if err := checkDirectoryWritable(dir); err != nil {
		return &PermissionError{
			Path:    dir,
			Op:      "write",
			Fix:     getWritePermissionFix(dir),
			Details: "Cannot write to config directory",
		}
	}

	if _, err := os.Stat(path); err == nil {
		if err := checkFileWritable(path); err != nil {
			return &PermissionError{
				Path:    path,
				Op:      "write",
				Fix:     getWritePermissionFix(path),
				Details: "Config file is read-only",
			}
		}
	}

	return nil
}

func checkDirectoryWritable(dir string) error {
	tmpFile := filepath.Join(dir, ".write-test-"+uuid.NewString()[:8])
	f, err := os.Create(tmpFile)
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(tmpFile)
}

func checkFileWritable(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	return f.Close()
}

func getWritePermissionFix(path string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Right-click %s → Properties → Security → Grant 'Write' permission", path)
	default:
		return fmt.Sprintf("Run: chmod u+w %s", path)
	}
}

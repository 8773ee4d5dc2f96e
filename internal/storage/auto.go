package storage

import (
	"os"
	"path/filepath"
)

// IsReadOnlyEnv probes for write permission, first against the OS temp
// directory, then against a dotfile in the current working directory,
// mirroring the two-stage probe in the original Python SDK
// (queueManagerPackage/storage/index.py's is_read_only_env): some sandboxes
// make the temp directory read-only but allow writes under the working
// directory, or vice versa.
func IsReadOnlyEnv() bool {
	if probeWrite(os.TempDir()) {
		return false
	}
	cwd, err := os.Getwd()
	if err != nil {
		return true
	}
	return !probeWriteFile(filepath.Join(cwd, ".olakai_write_test"))
}

func probeWrite(dir string) bool {
	f, err := os.CreateTemp(dir, ".olakai-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

func probeWriteFile(path string) bool {
	if err := os.WriteFile(path, []byte("test"), 0o600); err != nil {
		return false
	}
	os.Remove(path)
	return true
}

package storage

import (
	"os"
	"path/filepath"
)

// File persists one JSON document per key under BasePath, writing each
// update atomically (write to a temp file, then rename) so a crash mid-write
// cannot leave a half-written document. Best-effort only: durability under
// power loss is out of scope.
type File struct {
	basePath string
}

// NewFile constructs a File adapter rooted at basePath, creating the
// directory if necessary.
func NewFile(basePath string) (*File, error) {
	if basePath == "" {
		basePath = os.TempDir()
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &File{basePath: basePath}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.basePath, key+".json")
}

func (f *File) Get(key string) (string, bool) {
	b, err := os.ReadFile(f.path(key))
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (f *File) Set(key string, value string) error {
	target := f.path(key)
	tmp, err := os.CreateTemp(f.basePath, ".olakai-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, target)
}

func (f *File) Remove(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *File) Clear() error {
	matches, err := filepath.Glob(filepath.Join(f.basePath, "*.json"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

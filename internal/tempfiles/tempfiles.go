package tempfiles

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Create makes a temp file in the provided directory, creating the directory if needed.
func Create(dir string, pattern string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir %q: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

// Spool copies r into a new temp file in dir and rewinds it. The returned
// file is removed when closed.
func Spool(dir, pattern string, r io.Reader) (io.ReadCloser, int64, error) {
	f, err := Create(dir, pattern)
	if err != nil {
		return nil, 0, err
	}
	rc := NewDeleteOnClose(f)
	n, err := io.Copy(f, r)
	if err != nil {
		_ = rc.Close()
		return nil, 0, fmt.Errorf("spool: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = rc.Close()
		return nil, 0, fmt.Errorf("spool rewind: %w", err)
	}
	return rc, n, nil
}

// WriteAtomic writes r to dir/name through a sibling temp file and a rename,
// so readers never observe a partially written file.
func WriteAtomic(dir, name string, r io.Reader) (int64, error) {
	f, err := Create(dir, "."+name+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmp := f.Name()
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("rename %s: %w", name, err)
	}
	return n, nil
}

// NewDeleteOnClose wraps an open file and removes it when the reader is closed.
func NewDeleteOnClose(file *os.File) io.ReadCloser {
	return &deleteOnCloseReadCloser{
		file: file,
		path: file.Name(),
	}
}

type deleteOnCloseReadCloser struct {
	file *os.File
	path string
	once sync.Once
}

func (d *deleteOnCloseReadCloser) Read(p []byte) (int, error) {
	return d.file.Read(p)
}

func (d *deleteOnCloseReadCloser) Close() error {
	var closeErr, removeErr error
	d.once.Do(func() {
		closeErr = d.file.Close()
		if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
			removeErr = err
		}
	})
	if closeErr != nil {
		return closeErr
	}
	return removeErr
}

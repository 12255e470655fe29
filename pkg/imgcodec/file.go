package imgcodec

import (
	"errors"
	"io"
	"os"
	"sync"
)

// FileDisplayer writes every image to its own temporary file. The
// file lives as long as its handle.
type FileDisplayer struct {
	dir string
}

// NewFileDisplayer returns a FileDisplayer writing in dir. An empty
// dir means the system temporary directory.
func NewFileDisplayer(dir string) (*FileDisplayer, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	return &FileDisplayer{dir: dir}, nil
}

// Display writes b to a new temporary file.
func (d *FileDisplayer) Display(b []byte, _ Info) (Handle, error) {
	fd, err := os.CreateTemp(d.dir, "retouch-*.png")
	if err != nil {
		return nil, err
	}
	if _, err = fd.Write(b); err != nil {
		fd.Close()
		os.Remove(fd.Name())
		return nil, err
	}
	if err = fd.Close(); err != nil {
		os.Remove(fd.Name())
		return nil, err
	}

	return &FileHandle{path: fd.Name()}, nil
}

// FileHandle is a handle backed by a file on disk.
type FileHandle struct {
	path string
	once sync.Once
	err  error
}

// ID returns the file path.
func (h *FileHandle) ID() string {
	return h.path
}

// Path returns the file path.
func (h *FileHandle) Path() string {
	return h.path
}

// CopyTo writes the image file content to w.
func (h *FileHandle) CopyTo(w io.Writer) error {
	fd, err := os.Open(h.path)
	if err != nil {
		return err
	}
	defer fd.Close()

	_, err = io.Copy(w, fd)
	return err
}

// Release removes the file.
func (h *FileHandle) Release() error {
	h.once.Do(func() {
		if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.err = err
		}
	})
	return h.err
}

package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/powens/tinyretro/internal/board"
)

const backendFile = "file"

// FileGateway keeps the board as a JSON document at a fixed path.
type FileGateway struct {
	path string
}

// NewFileGateway stores the board as JSON at path. The file is created on
// the first Save.
func NewFileGateway(path string) *FileGateway {
	return &FileGateway{path: path}
}

// Load reads the board file. A missing file yields ErrNoDocument.
func (g *FileGateway) Load(_ context.Context) (*board.Board, error) {
	data, err := os.ReadFile(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Backend: backendFile, Err: err}
	}

	b, err := decodeBoard(data)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Backend: backendFile, Err: err}
	}
	return b, nil
}

// Save writes to a temporary file in the same directory and renames it over
// the target, so readers never observe a half-written document.
func (g *FileGateway) Save(_ context.Context, b *board.Board) error {
	data, err := encodeBoard(b)
	if err != nil {
		return &PersistenceError{Op: "save", Backend: backendFile, Err: err}
	}
	if err := writeFileAtomic(g.path, data); err != nil {
		return &PersistenceError{Op: "save", Backend: backendFile, Err: err}
	}
	return nil
}

// Close is a no-op; the file is not held open between calls.
func (g *FileGateway) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename has succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

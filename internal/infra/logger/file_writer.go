package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileWriter appends to a log file and can reopen it after the file was replaced.
type FileWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func OpenFileWriter(path string) (*FileWriter, error) {
	w := &FileWriter{path: path}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *FileWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", w.path, err)
	}
	w.f = f
	return nil
}

func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Write(p)
}

// Reopen switches to the file currently at the path, if path matches.
func (w *FileWriter) Reopen(path string) error {
	if filepath.Clean(path) != filepath.Clean(w.path) {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	old := w.f
	if err := w.open(); err != nil {
		w.f = old
		return err
	}
	return old.Close()
}

func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"maintenance_scheduler/internal/domain/ledger"
)

type ledgerFile struct {
	SentNotifications map[string]ledger.Record `json:"sent_notifications"`
}

// JSONLedgerRepository keeps the ledger in a single JSON file, rewritten
// atomically on every upsert. It does not guard against other processes.
type JSONLedgerRepository struct {
	path string
	mu   sync.Mutex
}

func NewJSONLedgerRepository(path string) *JSONLedgerRepository {
	return &JSONLedgerRepository{path: path}
}

func (r *JSONLedgerRepository) Get(ctx context.Context, clientID string) (*ledger.Record, error) {
	records, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := records[clientID]
	if !ok {
		return nil, ledger.ErrRecordNotFound
	}
	return &rec, nil
}

func (r *JSONLedgerRepository) List(_ context.Context) (map[string]ledger.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.load()
	if err != nil {
		return nil, err
	}
	return f.SentNotifications, nil
}

func (r *JSONLedgerRepository) Upsert(_ context.Context, clientID string, rec ledger.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.load()
	if err != nil {
		return err
	}
	f.SentNotifications[clientID] = rec

	data, err := json.MarshalIndent(f, "", "    ")
	if err != nil {
		return fmt.Errorf("error encoding ledger: %w", err)
	}
	return WriteFileAtomic(r.path, data, 0o644)
}

func (r *JSONLedgerRepository) load() (*ledgerFile, error) {
	f := &ledgerFile{}
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			f.SentNotifications = map[string]ledger.Record{}
			return f, nil
		}
		return nil, fmt.Errorf("error reading ledger %s: %w", r.path, err)
	}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("error decoding ledger %s: %w", r.path, err)
	}
	if f.SentNotifications == nil {
		f.SentNotifications = map[string]ledger.Record{}
	}
	return f, nil
}

// WriteFileAtomic writes data to a temp file in the target directory and renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

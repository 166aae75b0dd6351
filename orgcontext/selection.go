package orgcontext

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// SelectionStore durably holds the last explicitly selected organization id.
// Load returns "" when nothing is stored.
type SelectionStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, orgID string) error
	Clear(ctx context.Context) error
}

type MemorySelection struct {
	mu    sync.Mutex
	orgID string
}

func NewMemorySelection() *MemorySelection {
	return &MemorySelection{}
}

func (m *MemorySelection) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orgID, nil
}

func (m *MemorySelection) Save(_ context.Context, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgID = orgID
	return nil
}

func (m *MemorySelection) Clear(context.Context) error {
	return m.Save(context.Background(), "")
}

// FileSelection keeps the selection in a small JSON file, surviving process
// restarts on the same machine.
type FileSelection struct {
	path string
	mu   sync.Mutex
}

type selectionFile struct {
	CurrentOrgID string `json:"current_org_id"`
}

func NewFileSelection(path string) *FileSelection {
	return &FileSelection{path: path}
}

// DefaultSelectionPath is mmm-dashboard/selection.json under the user's
// config directory.
func DefaultSelectionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(dir, "mmm-dashboard", "selection.json"), nil
}

func (f *FileSelection) Load(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read selection file: %w", err)
	}

	var sf selectionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return "", fmt.Errorf("decode selection file: %w", err)
	}
	return sf.CurrentOrgID, nil
}

func (f *FileSelection) Save(_ context.Context, orgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(selectionFile{CurrentOrgID: orgID})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create selection dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".selection-*")
	if err != nil {
		return fmt.Errorf("create selection file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write selection file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write selection file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace selection file: %w", err)
	}
	return nil
}

func (f *FileSelection) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove selection file: %w", err)
	}
	return nil
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// SnapshotHandler exports and imports the whole project document.
type SnapshotHandler struct {
	store ports.StateStore
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(store ports.StateStore) *SnapshotHandler {
	return &SnapshotHandler{store: store}
}

// Export writes the project snapshot as JSON to path. The document is
// written to a temp file and renamed so a crash never leaves a truncated
// export under the target name.
func (h *SnapshotHandler) Export(ctx context.Context, path string) (*entities.ProjectSnapshot, error) {
	snap, err := h.store.ExportSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("exporting snapshot: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("moving snapshot into place: %w", err)
	}
	return snap, nil
}

// Import replaces the project state with the snapshot read from path.
func (h *SnapshotHandler) Import(ctx context.Context, path string) (*entities.ProjectSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap entities.ProjectSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	if err := h.store.ImportSnapshot(ctx, &snap); err != nil {
		return nil, fmt.Errorf("importing snapshot: %w", err)
	}
	return &snap, nil
}

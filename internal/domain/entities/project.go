package entities

import "time"

// SnapshotVersion is the current project document format version.
const SnapshotVersion = 1

// ProjectSnapshot is the whole-project document: chapters, entity registry,
// validation queue and asset manifest serialized together. Export produces
// it; import replaces the project state with it atomically.
type ProjectSnapshot struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	Chapters   []*Chapter     `json:"chapters"`
	Entities   []*Entity      `json:"entities"`
	Pending    []*PendingItem `json:"pending"`
	Units      []*ScriptUnit  `json:"units"`
	Assets     []*SceneAsset  `json:"assets"`
}

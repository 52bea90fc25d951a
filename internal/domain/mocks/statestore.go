package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// AuditEntry is one recorded LogAction call.
type AuditEntry struct {
	Action    string
	SubjectID string
	Details   map[string]any
}

// StateStore is an in-memory implementation of ports.StateStore. It mirrors
// the semantics of the sqlite store closely enough for service tests,
// including transactional rollback via snapshot restore.
type StateStore struct {
	mu sync.Mutex

	Chapters     map[string]*entities.Chapter
	Entities     map[string]*entities.Entity
	Pending      map[string]*entities.PendingItem
	pendingOrder []string
	Units        map[string][]*entities.ScriptUnit // keyed by chapter id
	Assets       map[string]*entities.SceneAsset
	Audit        []AuditEntry

	Err error // When set, every operation fails with it
}

// NewStateStore creates an empty in-memory store.
func NewStateStore() *StateStore {
	return &StateStore{
		Chapters: make(map[string]*entities.Chapter),
		Entities: make(map[string]*entities.Entity),
		Pending:  make(map[string]*entities.PendingItem),
		Units:    make(map[string][]*entities.ScriptUnit),
		Assets:   make(map[string]*entities.SceneAsset),
	}
}

// EnsureSchema is a no-op.
func (m *StateStore) EnsureSchema(_ context.Context) error {
	return m.Err
}

// Close is a no-op.
func (m *StateStore) Close() error {
	return nil
}

// InTransaction runs fn against the store, restoring the previous state if
// fn fails.
func (m *StateStore) InTransaction(ctx context.Context, fn func(tx ports.StateStore) error) error {
	if m.Err != nil {
		return m.Err
	}
	snap, err := m.ExportSnapshot(ctx)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil {
		if restoreErr := m.ImportSnapshot(ctx, snap); restoreErr != nil {
			return fmt.Errorf("rolling back: %w", restoreErr)
		}
		return err
	}
	return nil
}

// SaveChapter inserts or updates a chapter.
func (m *StateStore) SaveChapter(_ context.Context, chapter *entities.Chapter) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *chapter
	m.Chapters[chapter.ID] = &c
	return nil
}

// FindChapter finds a chapter by ID.
func (m *StateStore) FindChapter(_ context.Context, id string) (*entities.Chapter, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chapter, ok := m.Chapters[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	c := *chapter
	return &c, nil
}

// ListChapters returns chapters ordered by ordinal.
func (m *StateStore) ListChapters(_ context.Context) ([]*entities.Chapter, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chapters := make([]*entities.Chapter, 0, len(m.Chapters))
	for _, chapter := range m.Chapters {
		c := *chapter
		chapters = append(chapters, &c)
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Ordinal < chapters[j].Ordinal })
	return chapters, nil
}

// AdvanceChapter moves a chapter forward if the stored status matches from.
func (m *StateStore) AdvanceChapter(_ context.Context, id string, from, to entities.ChapterStatus) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chapter, ok := m.Chapters[id]
	if !ok {
		return ports.ErrNotFound
	}
	if chapter.Status != from {
		return fmt.Errorf("chapter %s is %s, expected %s", id, chapter.Status, from)
	}
	if !from.CanAdvanceTo(to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	chapter.Status = to
	chapter.UpdatedAt = time.Now()
	return nil
}

// ResetChapter commits new content for a modified chapter.
func (m *StateStore) ResetChapter(_ context.Context, id, fingerprint, text string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chapter, ok := m.Chapters[id]
	if !ok {
		return ports.ErrNotFound
	}
	chapter.Fingerprint = fingerprint
	chapter.Text = text
	chapter.Status = entities.ChapterUnprocessed
	chapter.UpdatedAt = time.Now()

	delete(m.Units, id)
	for _, asset := range m.Assets {
		if asset.ChapterID == id {
			asset.Superseded = true
		}
	}

	var keep []string
	for _, itemID := range m.pendingOrder {
		item := m.Pending[itemID]
		if !item.Decided && item.Candidate.ChapterID == id {
			if item.EntityID != "" {
				if ent, ok := m.Entities[item.EntityID]; ok && ent.Validation == entities.ValidationPending && ent.FirstSeenChapter == id {
					delete(m.Entities, item.EntityID)
				}
			}
			delete(m.Pending, itemID)
			continue
		}
		keep = append(keep, itemID)
	}
	m.pendingOrder = keep
	return nil
}

// SaveEntity inserts or updates an entity.
func (m *StateStore) SaveEntity(_ context.Context, entity *entities.Entity) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *entity
	e.Aliases = append([]string(nil), entity.Aliases...)
	m.Entities[entity.ID] = &e
	return nil
}

// FindEntity finds an entity by ID.
func (m *StateStore) FindEntity(_ context.Context, id string) (*entities.Entity, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, ok := m.Entities[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return copyEntity(entity), nil
}

// FindEntityByAlias finds the entity of the kind owning the normalized alias.
func (m *StateStore) FindEntityByAlias(_ context.Context, kind entities.EntityKind, normalized string) (*entities.Entity, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entity := range m.Entities {
		if entity.Kind != kind {
			continue
		}
		if entity.HasAlias(normalized) {
			return copyEntity(entity), nil
		}
	}
	return nil, ports.ErrNotFound
}

// ListEntities returns entities filtered by kind and validation status.
func (m *StateStore) ListEntities(_ context.Context, kind entities.EntityKind, validation entities.ValidationStatus) ([]*entities.Entity, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.Entity
	for _, entity := range m.Entities {
		if kind != "" && entity.Kind != kind {
			continue
		}
		if validation != "" && entity.Validation != validation {
			continue
		}
		out = append(out, copyEntity(entity))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddAlias attaches a surface form to an entity.
func (m *StateStore) AddAlias(_ context.Context, entityID, alias, chapterID string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, ok := m.Entities[entityID]
	if !ok {
		return ports.ErrNotFound
	}
	if !entity.HasAlias(alias) {
		entity.Aliases = append(entity.Aliases, alias)
	}
	if chapterID != "" {
		entity.LastUpdatedChapter = chapterID
	}
	entity.UpdatedAt = time.Now()
	return nil
}

// DeleteEntity removes an entity.
func (m *StateStore) DeleteEntity(_ context.Context, id string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Entities, id)
	return nil
}

// EnqueuePending adds an item to the validation queue.
func (m *StateStore) EnqueuePending(_ context.Context, item *entities.PendingItem) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := *item
	m.Pending[item.ID] = &i
	m.pendingOrder = append(m.pendingOrder, item.ID)
	return nil
}

// ListPending returns undecided items in FIFO order.
func (m *StateStore) ListPending(_ context.Context) ([]*entities.PendingItem, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.PendingItem
	for _, id := range m.pendingOrder {
		item := m.Pending[id]
		if item == nil || item.Decided {
			continue
		}
		i := *item
		out = append(out, &i)
	}
	return out, nil
}

// FindPending finds a queue item by ID.
func (m *StateStore) FindPending(_ context.Context, id string) (*entities.PendingItem, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.Pending[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	i := *item
	return &i, nil
}

// MarkDecided records the decision on an undecided item.
func (m *StateStore) MarkDecided(_ context.Context, id string, decision entities.Decision) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.Pending[id]
	if !ok {
		return ports.ErrNotFound
	}
	if item.Decided {
		return fmt.Errorf("item %s already decided", id)
	}
	item.Decided = true
	item.Decision = &decision
	item.DecidedAt = time.Now()
	return nil
}

// CountPending returns the number of undecided items.
func (m *StateStore) CountPending(_ context.Context) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, item := range m.Pending {
		if !item.Decided {
			count++
		}
	}
	return count, nil
}

// ReplaceScriptUnits swaps the chapter's script.
func (m *StateStore) ReplaceScriptUnits(_ context.Context, chapterID string, units []*entities.ScriptUnit) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]*entities.ScriptUnit, len(units))
	for i, unit := range units {
		u := *unit
		copied[i] = &u
	}
	m.Units[chapterID] = copied
	return nil
}

// ListScriptUnits returns the chapter's script in unit order.
func (m *StateStore) ListScriptUnits(_ context.Context, chapterID string) ([]*entities.ScriptUnit, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	units := m.Units[chapterID]
	out := make([]*entities.ScriptUnit, len(units))
	for i, unit := range units {
		u := *unit
		out[i] = &u
	}
	return out, nil
}

// SaveSceneAsset inserts or updates a scene asset.
func (m *StateStore) SaveSceneAsset(_ context.Context, asset *entities.SceneAsset) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a := *asset
	a.Images = append([]entities.TimedImage(nil), asset.Images...)
	a.Cues = append([]entities.SubtitleCue(nil), asset.Cues...)
	m.Assets[asset.ID] = &a
	return nil
}

// FindActiveAsset returns the non-superseded asset for a unit.
func (m *StateStore) FindActiveAsset(_ context.Context, unitID string) (*entities.SceneAsset, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, asset := range m.Assets {
		if asset.UnitID == unitID && !asset.Superseded {
			return copyAsset(asset), nil
		}
	}
	return nil, ports.ErrNotFound
}

// ListAssets returns the chapter's non-superseded assets in unit order.
func (m *StateStore) ListAssets(_ context.Context, chapterID string) ([]*entities.SceneAsset, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	unitIndex := make(map[string]int)
	for _, unit := range m.Units[chapterID] {
		unitIndex[unit.ID] = unit.Index
	}
	var out []*entities.SceneAsset
	for _, asset := range m.Assets {
		if asset.ChapterID == chapterID && !asset.Superseded {
			out = append(out, copyAsset(asset))
		}
	}
	sort.Slice(out, func(i, j int) bool { return unitIndex[out[i].UnitID] < unitIndex[out[j].UnitID] })
	return out, nil
}

// SupersedeAssets marks every asset of the chapter superseded.
func (m *StateStore) SupersedeAssets(_ context.Context, chapterID string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, asset := range m.Assets {
		if asset.ChapterID == chapterID {
			asset.Superseded = true
		}
	}
	return nil
}

// LogAction records the entry.
func (m *StateStore) LogAction(_ context.Context, action, subjectID string, details map[string]any) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Audit = append(m.Audit, AuditEntry{Action: action, SubjectID: subjectID, Details: details})
	return nil
}

// ExportSnapshot serializes the whole state.
func (m *StateStore) ExportSnapshot(ctx context.Context) (*entities.ProjectSnapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	chapters, _ := m.ListChapters(ctx)
	ents, _ := m.ListEntities(ctx, "", "")

	m.mu.Lock()
	defer m.mu.Unlock()
	snap := &entities.ProjectSnapshot{
		Version:    entities.SnapshotVersion,
		ExportedAt: time.Now(),
		Chapters:   chapters,
		Entities:   ents,
	}
	for _, id := range m.pendingOrder {
		if item := m.Pending[id]; item != nil {
			i := *item
			snap.Pending = append(snap.Pending, &i)
		}
	}
	for _, chapter := range chapters {
		for _, unit := range m.Units[chapter.ID] {
			u := *unit
			snap.Units = append(snap.Units, &u)
		}
	}
	for _, asset := range m.Assets {
		snap.Assets = append(snap.Assets, copyAsset(asset))
	}
	return snap, nil
}

// ImportSnapshot replaces the whole state.
func (m *StateStore) ImportSnapshot(_ context.Context, snap *entities.ProjectSnapshot) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Chapters = make(map[string]*entities.Chapter)
	m.Entities = make(map[string]*entities.Entity)
	m.Pending = make(map[string]*entities.PendingItem)
	m.pendingOrder = nil
	m.Units = make(map[string][]*entities.ScriptUnit)
	m.Assets = make(map[string]*entities.SceneAsset)

	for _, chapter := range snap.Chapters {
		c := *chapter
		m.Chapters[chapter.ID] = &c
	}
	for _, entity := range snap.Entities {
		m.Entities[entity.ID] = copyEntity(entity)
	}
	for _, item := range snap.Pending {
		i := *item
		m.Pending[item.ID] = &i
		m.pendingOrder = append(m.pendingOrder, item.ID)
	}
	for _, unit := range snap.Units {
		u := *unit
		m.Units[unit.ChapterID] = append(m.Units[unit.ChapterID], &u)
	}
	for _, asset := range snap.Assets {
		m.Assets[asset.ID] = copyAsset(asset)
	}
	return nil
}

func copyEntity(e *entities.Entity) *entities.Entity {
	c := *e
	c.Aliases = append([]string(nil), e.Aliases...)
	return &c
}

func copyAsset(a *entities.SceneAsset) *entities.SceneAsset {
	c := *a
	c.Images = append([]entities.TimedImage(nil), a.Images...)
	c.Cues = append([]entities.SubtitleCue(nil), a.Cues...)
	return &c
}

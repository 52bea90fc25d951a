package handlers

import (
	"context"
	"fmt"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// StatusHandler reports project progress.
type StatusHandler struct {
	store ports.StateStore
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(store ports.StateStore) *StatusHandler {
	return &StatusHandler{store: store}
}

// ChapterStatus is one chapter's progress row.
type ChapterStatus struct {
	ID       string                 `json:"id"`
	Title    string                 `json:"title"`
	Ordinal  int                    `json:"ordinal"`
	Status   entities.ChapterStatus `json:"status"`
	Units    int                    `json:"units"`
	Degraded int                    `json:"degraded"`
}

// ProjectStatus is the full progress report.
type ProjectStatus struct {
	Chapters     []ChapterStatus `json:"chapters"`
	PendingItems int             `json:"pending_items"`
	Entities     int             `json:"entities"`
	Confirmed    int             `json:"confirmed"`
}

// Handle gathers the progress report.
func (h *StatusHandler) Handle(ctx context.Context) (*ProjectStatus, error) {
	chapters, err := h.store.ListChapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing chapters: %w", err)
	}

	status := &ProjectStatus{}
	for _, chapter := range chapters {
		row := ChapterStatus{
			ID:      chapter.ID,
			Title:   chapter.Title,
			Ordinal: chapter.Ordinal,
			Status:  chapter.Status,
		}
		units, err := h.store.ListScriptUnits(ctx, chapter.ID)
		if err != nil {
			return nil, fmt.Errorf("listing script units: %w", err)
		}
		row.Units = len(units)

		assets, err := h.store.ListAssets(ctx, chapter.ID)
		if err != nil {
			return nil, fmt.Errorf("listing assets: %w", err)
		}
		for _, asset := range assets {
			if asset.Degraded {
				row.Degraded++
			}
		}
		status.Chapters = append(status.Chapters, row)
	}

	pending, err := h.store.CountPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting pending items: %w", err)
	}
	status.PendingItems = pending

	ents, err := h.store.ListEntities(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	status.Entities = len(ents)
	for _, ent := range ents {
		if ent.Validation == entities.ValidationConfirmed {
			status.Confirmed++
		}
	}
	return status, nil
}

// Package handlers wires domain services to the CLI and HTTP surfaces.
package handlers

import (
	"context"
	"fmt"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/services"
)

// ProcessHandler drives chapter scanning and pipeline processing.
type ProcessHandler struct {
	pipeline *services.Pipeline
}

// NewProcessHandler creates a new process handler.
func NewProcessHandler(pipeline *services.Pipeline) *ProcessHandler {
	return &ProcessHandler{pipeline: pipeline}
}

// ProcessResult summarizes one processing run.
type ProcessResult struct {
	Scan     *services.ScanReport
	Outcomes []services.ChapterOutcome
	Blocked  int
	Failed   int
}

// Handle scans the chapters directory and advances every chapter as far as
// possible.
func (h *ProcessHandler) Handle(ctx context.Context, chaptersDir string, through entities.ChapterStatus, chapterIDs []string) (*ProcessResult, error) {
	scan, err := h.pipeline.ScanChapters(ctx, chaptersDir)
	if err != nil {
		return nil, fmt.Errorf("scanning chapters: %w", err)
	}

	outcomes, err := h.pipeline.Process(ctx, services.ProcessOptions{
		Through:    through,
		ChapterIDs: chapterIDs,
	})
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{Scan: scan, Outcomes: outcomes}
	for _, outcome := range outcomes {
		if outcome.Blocked {
			result.Blocked++
		}
		if outcome.Err != nil {
			result.Failed++
		}
	}
	return result, nil
}

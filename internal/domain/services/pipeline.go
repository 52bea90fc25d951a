package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// Pipeline coordinates the per-chapter stage progression. Chapters advance
// independently and may run concurrently; the entity registry is the only
// shared mutable resource and serializes its own writes. Every stage
// boundary commits through the state store so an interrupted run resumes
// from the last fully committed stage per chapter.
type Pipeline struct {
	store      ports.StateStore
	extractors []ports.Extractor
	registry   *Registry
	script     *ScriptGenerator
	planner    *SyncPlanner
	composer   *Composer
	jobs       int
	retry      RetryPolicy
	logger     *slog.Logger
}

// NewPipeline wires the pipeline stages together.
func NewPipeline(store ports.StateStore, extractors []ports.Extractor, registry *Registry, script *ScriptGenerator, planner *SyncPlanner, composer *Composer, jobs int, retry RetryPolicy, logger *slog.Logger) *Pipeline {
	if jobs < 1 {
		jobs = 1
	}
	return &Pipeline{
		store:      store,
		extractors: extractors,
		registry:   registry,
		script:     script,
		planner:    planner,
		composer:   composer,
		jobs:       jobs,
		retry:      retry,
		logger:     logger,
	}
}

// ScanReport summarizes a chapter directory scan.
type ScanReport struct {
	New       []string
	Modified  []string
	Unchanged []string
}

// ScanChapters reads chapter text files from dir (sorted by filename, which
// defines the ordinal), fingerprints each one and commits new text for new
// or modified chapters. A modified chapter loses its downstream artifacts
// but keeps every confirmed entity it contributed.
func (p *Pipeline) ScanChapters(ctx context.Context, dir string) (*ScanReport, error) {
	names, err := listChapterFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, NewInputError("no chapter files found in %s", dir)
	}

	report := &ScanReport{}
	for ordinal, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, NewInputError("reading chapter %s: %v", name, err)
		}
		text := string(data)
		if strings.TrimSpace(text) == "" {
			return nil, NewInputError("chapter %s is empty", name)
		}

		id := chapterID(name)
		stored, err := p.store.FindChapter(ctx, id)
		storedFP := ""
		if err == nil {
			storedFP = stored.Fingerprint
		} else if !errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("%w: loading chapter %s: %v", ErrStateStore, id, err)
		}

		change, fp := DetectChange(storedFP, text)
		switch change {
		case entities.ChangeNew:
			now := time.Now()
			chapter := &entities.Chapter{
				ID:          id,
				Ordinal:     ordinal,
				Title:       strings.TrimSuffix(name, filepath.Ext(name)),
				Text:        text,
				Fingerprint: fp,
				Status:      entities.ChapterUnprocessed,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := p.store.SaveChapter(ctx, chapter); err != nil {
				return nil, fmt.Errorf("%w: saving chapter %s: %v", ErrStateStore, id, err)
			}
			report.New = append(report.New, id)
		case entities.ChangeModified:
			if err := p.store.ResetChapter(ctx, id, fp, text); err != nil {
				return nil, fmt.Errorf("%w: resetting chapter %s: %v", ErrStateStore, id, err)
			}
			report.Modified = append(report.Modified, id)
		default:
			report.Unchanged = append(report.Unchanged, id)
		}
	}
	return report, nil
}

// ChapterOutcome reports what happened to one chapter during processing.
type ChapterOutcome struct {
	ChapterID string
	Status    entities.ChapterStatus
	Blocked   bool // Waiting on validation
	Err       error
}

// ProcessOptions controls a processing run.
type ProcessOptions struct {
	// Through stops the pipeline after the given stage (inclusive).
	// Zero value means run to completion.
	Through entities.ChapterStatus
	// ChapterIDs restricts processing; empty means every chapter.
	ChapterIDs []string
}

// Process advances every selected chapter as far as it can go. Independent
// chapters run on a bounded worker pool; a failed or blocked chapter never
// stops the others.
func (p *Pipeline) Process(ctx context.Context, opts ProcessOptions) ([]ChapterOutcome, error) {
	chapters, err := p.selectChapters(ctx, opts.ChapterIDs)
	if err != nil {
		return nil, err
	}

	outcomes := make([]ChapterOutcome, len(chapters))
	sem := make(chan struct{}, p.jobs)
	var wg sync.WaitGroup

	for i, chapter := range chapters {
		wg.Add(1)
		go func(i int, chapter *entities.Chapter) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = p.processChapter(ctx, chapter, opts.Through)
		}(i, chapter)
	}
	wg.Wait()
	return outcomes, nil
}

// processChapter runs one chapter's stage loop until it completes, blocks
// on validation or fails.
func (p *Pipeline) processChapter(ctx context.Context, chapter *entities.Chapter, through entities.ChapterStatus) ChapterOutcome {
	outcome := ChapterOutcome{ChapterID: chapter.ID}
	logger := p.logger.With(slog.String("chapter", chapter.ID))

	for {
		if err := ctx.Err(); err != nil {
			outcome.Err = err
			break
		}

		current, err := p.store.FindChapter(ctx, chapter.ID)
		if err != nil {
			outcome.Err = fmt.Errorf("%w: reloading chapter: %v", ErrStateStore, err)
			break
		}
		outcome.Status = current.Status

		if current.Status == entities.ChapterComposed {
			break
		}
		if through != "" && current.Status.Rank() >= through.Rank() {
			break
		}

		next, err := p.runStage(ctx, current, logger)
		if err != nil {
			outcome.Err = err
			break
		}
		if next == "" { // Blocked on validation
			outcome.Blocked = true
			break
		}

		if err := p.store.AdvanceChapter(ctx, current.ID, current.Status, next); err != nil {
			outcome.Err = fmt.Errorf("%w: committing stage %s: %v", ErrStateStore, next, err)
			break
		}
		outcome.Status = next
		logger.Info("stage committed", slog.String("status", string(next)))
	}
	return outcome
}

// runStage executes the work for the chapter's current stage and returns
// the status to commit, or "" when the chapter must wait for validation.
func (p *Pipeline) runStage(ctx context.Context, chapter *entities.Chapter, logger *slog.Logger) (entities.ChapterStatus, error) {
	switch chapter.Status {
	case entities.ChapterUnprocessed:
		if err := p.extractAndMerge(ctx, chapter, logger); err != nil {
			return "", err
		}
		return entities.ChapterExtracted, nil

	case entities.ChapterExtracted:
		// The validation gate holds every chapter at this boundary until
		// the reviewer has drained the queue; merging entities while
		// identities are still in dispute would risk identity drift.
		pending, err := p.store.CountPending(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: counting pending items: %v", ErrStateStore, err)
		}
		if pending > 0 {
			return "", nil
		}
		return entities.ChapterValidated, nil

	case entities.ChapterValidated:
		if _, err := p.script.Generate(ctx, chapter); err != nil {
			return "", err
		}
		return entities.ChapterScripted, nil

	case entities.ChapterScripted:
		if err := p.synthesizeChapter(ctx, chapter); err != nil {
			return "", err
		}
		return entities.ChapterSynthesized, nil

	case entities.ChapterSynthesized:
		if err := p.composer.ComposeChapter(ctx, chapter); err != nil {
			return "", err
		}
		return entities.ChapterComposed, nil

	default:
		return "", fmt.Errorf("chapter %s in unexpected status %q", chapter.ID, chapter.Status)
	}
}

// extractAndMerge pools candidates from every active backend and hands them
// to the merge engine in one serialized pass.
func (p *Pipeline) extractAndMerge(ctx context.Context, chapter *entities.Chapter, logger *slog.Logger) error {
	var pooled []entities.EntityCandidate
	var failures []error

	for _, extractor := range p.extractors {
		var candidates []entities.EntityCandidate
		err := p.retry.Do(ctx, func() error {
			var exErr error
			candidates, exErr = extractor.Extract(ctx, chapter.Text)
			return exErr
		})
		if err != nil {
			failures = append(failures, &BackendError{
				Stage:    "extraction",
				Backend:  extractor.Name(),
				Attempts: p.retry.Attempts,
				Err:      err,
			})
			logger.Warn("extraction backend failed",
				slog.String("backend", extractor.Name()),
				slog.Any("error", err))
			continue
		}
		for i := range candidates {
			candidates[i].ChapterID = chapter.ID
			if candidates[i].Source == "" {
				candidates[i].Source = extractor.Name()
			}
		}
		pooled = append(pooled, candidates...)
	}

	if len(failures) == len(p.extractors) && len(p.extractors) > 0 {
		return fmt.Errorf("all extraction backends failed for %s: %w", chapter.ID, errors.Join(failures...))
	}

	report, err := p.registry.MergeCandidates(ctx, pooled)
	if err != nil {
		return fmt.Errorf("merging candidates for %s: %w", chapter.ID, err)
	}
	logger.Info("extraction merged",
		slog.Int("evidence", report.Evidence),
		slog.Int("created", report.Created),
		slog.Int("suggested", report.Suggested),
		slog.Int("conflicts", report.Conflicts),
		slog.Int("rejected", report.Rejected))
	return nil
}

// synthesizeChapter plans audio and timing for every unit of the chapter.
func (p *Pipeline) synthesizeChapter(ctx context.Context, chapter *entities.Chapter) error {
	units, err := p.store.ListScriptUnits(ctx, chapter.ID)
	if err != nil {
		return fmt.Errorf("%w: listing script units: %v", ErrStateStore, err)
	}
	for _, unit := range units {
		var speaker *entities.Entity
		if unit.SpeakerID != "" {
			speaker, err = p.store.FindEntity(ctx, unit.SpeakerID)
			if err != nil && !errors.Is(err, ports.ErrNotFound) {
				return fmt.Errorf("%w: loading speaker: %v", ErrStateStore, err)
			}
		}
		if _, err := p.planner.PlanUnit(ctx, unit, speaker); err != nil {
			return err
		}
	}
	return nil
}

// selectChapters loads the chapters to process, preserving ordinal order.
func (p *Pipeline) selectChapters(ctx context.Context, ids []string) ([]*entities.Chapter, error) {
	chapters, err := p.store.ListChapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing chapters: %v", ErrStateStore, err)
	}
	if len(ids) == 0 {
		return chapters, nil
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var selected []*entities.Chapter
	for _, chapter := range chapters {
		if want[chapter.ID] {
			selected = append(selected, chapter)
			delete(want, chapter.ID)
		}
	}
	for id := range want {
		return nil, NewInputError("unknown chapter %q", id)
	}
	return selected, nil
}

// listChapterFiles returns chapter file names sorted by name.
func listChapterFiles(dir string) ([]string, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewInputError("reading chapters dir %s: %v", dir, err)
	}
	var names []string
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		switch filepath.Ext(de.Name()) {
		case ".txt", ".md":
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// chapterID derives a stable chapter id from the file name.
func chapterID(name string) string {
	id := strings.TrimSuffix(name, filepath.Ext(name))
	id = strings.ToLower(strings.Join(strings.Fields(id), "_"))
	return id
}

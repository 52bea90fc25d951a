package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"

	"github.com/narravid/narravid/internal/application/handlers"
	"github.com/narravid/narravid/internal/domain/ports"
	"github.com/narravid/narravid/internal/domain/services"
	"github.com/narravid/narravid/internal/infrastructure/aliasindex/qdrant"
	"github.com/narravid/narravid/internal/infrastructure/config"
	embedder "github.com/narravid/narravid/internal/infrastructure/embedder/openai"
	lexicon "github.com/narravid/narravid/internal/infrastructure/extractor/lexicon"
	llmextractor "github.com/narravid/narravid/internal/infrastructure/extractor/openai"
	imagegen "github.com/narravid/narravid/internal/infrastructure/imagegen/openai"
	speech "github.com/narravid/narravid/internal/infrastructure/speech/openai"
	"github.com/narravid/narravid/internal/infrastructure/statestore/sqlite"
	"github.com/narravid/narravid/internal/infrastructure/videoenc/ffmpeg"
	"github.com/narravid/narravid/internal/logging"
)

// Deps holds high-level dependencies for commands. Only handlers are
// exposed; services and repositories stay internal.
type Deps struct {
	Config     *config.Config
	Logger     *slog.Logger
	BasePath   string
	Process    *handlers.ProcessHandler
	Validation *handlers.ValidationHandler
	Entities   *handlers.EntityHandler
	Status     *handlers.StatusHandler
	Render     *handlers.RenderHandler
	Snapshot   *handlers.SnapshotHandler
}

// withDeps loads config, takes the project lock, builds the dependency
// graph, then calls the provided function. Cleanup is automatic.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(os.Stderr, cfg.Logging.Level)

	// Single writer per project: the state database and generated assets
	// are not safe under concurrent runs.
	lock := flock.New(config.LockPath(cwd))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring project lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another narravid process holds the project lock (%s)", config.LockPath(cwd))
	}
	defer lock.Unlock()

	store, err := sqlite.NewStore(config.StatePath(cwd))
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	extractors, err := buildExtractors(cfg, store)
	if err != nil {
		return err
	}

	var emb ports.Embedder
	var aliasIndex ports.AliasIndex
	if cfg.Matching.Semantic {
		emb, aliasIndex, err = buildSemantic(ctx, cfg)
		if err != nil {
			return err
		}
		defer aliasIndex.Close()
	}

	policy := services.MatchPolicy{
		SuggestThreshold: cfg.Matching.SuggestThreshold,
		AmbiguityMargin:  cfg.Matching.AmbiguityMargin,
		MaxSuggestions:   cfg.Matching.MaxSuggestions,
	}
	retry := services.RetryPolicy{
		Attempts: cfg.Pipeline.RetryAttempts,
		Backoff:  cfg.Pipeline.RetryBackoff(),
	}

	registry := services.NewRegistry(store, emb, aliasIndex, policy, logging.NewComponentLogger(logger, "registry"))
	gate := services.NewGate(registry, store, logging.NewComponentLogger(logger, "gate"))
	scriptGen := services.NewScriptGenerator(store, cfg.Script.WordsPerMinute)

	tts, err := speech.NewSynthesizer(cfg.Speech)
	if err != nil {
		return fmt.Errorf("creating speech synthesizer: %w", err)
	}
	planner := services.NewSyncPlanner(store, tts, cfg.Speech.NarratorVoice, cfg.Images.SecondsPerImage,
		config.AudioDir(cwd), retry, logging.NewComponentLogger(logger, "syncplan"))

	imgGen, err := imagegen.NewGenerator(cfg.Images)
	if err != nil {
		return fmt.Errorf("creating image generator: %w", err)
	}
	assembler := ffmpeg.NewAssembler(cfg.Video)
	composer := services.NewComposer(store, imgGen, assembler, config.ImagesDir(cwd), config.ClipsDir(cwd),
		cfg.Images.Style, retry, logging.NewComponentLogger(logger, "composer"))

	pipeline := services.NewPipeline(store, extractors, registry, scriptGen, planner, composer,
		cfg.Pipeline.Jobs, retry, logging.NewComponentLogger(logger, "pipeline"))

	deps := &Deps{
		Config:     cfg,
		Logger:     logger,
		BasePath:   cwd,
		Process:    handlers.NewProcessHandler(pipeline),
		Validation: handlers.NewValidationHandler(gate),
		Entities:   handlers.NewEntityHandler(store),
		Status:     handlers.NewStatusHandler(store),
		Render:     handlers.NewRenderHandler(composer),
		Snapshot:   handlers.NewSnapshotHandler(store),
	}

	return fn(deps)
}

// buildExtractors assembles the enabled extraction backends.
func buildExtractors(cfg *config.Config, store ports.StateStore) ([]ports.Extractor, error) {
	var extractors []ports.Extractor

	if cfg.Extraction.Lexicon.Enabled {
		extractors = append(extractors, lexicon.NewExtractor(store, cfg.Extraction.Lexicon.Honorifics))
	}
	if cfg.Extraction.OpenAI.Enabled {
		ex, err := llmextractor.NewExtractor(cfg.Extraction.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("creating openai extractor: %w", err)
		}
		extractors = append(extractors, ex)
	}
	if len(extractors) == 0 {
		return nil, fmt.Errorf("no extraction backend enabled")
	}
	return extractors, nil
}

// buildSemantic wires the embedding-backed alias index.
func buildSemantic(ctx context.Context, cfg *config.Config) (ports.Embedder, ports.AliasIndex, error) {
	emb, err := embedder.NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedder: %w", err)
	}
	index, err := qdrant.NewRepository(cfg.Qdrant)
	if err != nil {
		return nil, nil, fmt.Errorf("creating alias index: %w", err)
	}
	if err := index.EnsureCollection(ctx, embedder.VectorSize); err != nil {
		index.Close()
		return nil, nil, fmt.Errorf("ensuring alias collection: %w", err)
	}
	return emb, index, nil
}

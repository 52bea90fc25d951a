package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narravid/narravid/internal/infrastructure/config"
)

// testConfig returns a config that wires only offline backends, so the full
// dependency graph can be built without network credentials.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Extraction.OpenAI.Enabled = false
	cfg.Matching.Semantic = false
	cfg.Speech.APIKey = "test-key"
	cfg.Images.APIKey = "test-key"
	return cfg
}

func TestWithDepsBuildsDependencyGraph(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, testConfig().Write(dir))

	var got *Deps
	err := withDeps(context.Background(), func(d *Deps) error {
		got = d
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.Logger)
	assert.NotNil(t, got.Process)
	assert.NotNil(t, got.Validation)
	assert.NotNil(t, got.Entities)
	assert.NotNil(t, got.Status)
	assert.NotNil(t, got.Render)
	assert.NotNil(t, got.Snapshot)
	assert.Equal(t, "info", got.Config.Logging.Level)
	assert.NotEmpty(t, got.BasePath)
}

func TestWithDepsRequiresInitializedProject(t *testing.T) {
	t.Chdir(t.TempDir())

	err := withDeps(context.Background(), func(*Deps) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "narravid init")
}

func TestBuildExtractors(t *testing.T) {
	cfg := testConfig()
	extractors, err := buildExtractors(cfg, nil)
	require.NoError(t, err)
	require.Len(t, extractors, 1)
	assert.Equal(t, "lexicon", extractors[0].Name())

	cfg.Extraction.Lexicon.Enabled = false
	_, err = buildExtractors(cfg, nil)
	require.Error(t, err)
}

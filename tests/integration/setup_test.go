package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/narravid/narravid/internal/infrastructure/aliasindex/qdrant"
	"github.com/narravid/narravid/internal/infrastructure/config"
	embedder "github.com/narravid/narravid/internal/infrastructure/embedder/openai"
)

const (
	testQdrantHost = "localhost"
	testQdrantPort = 6334
	testCollection = "narravid_integration_test"
)

// testIndex is nil unless INTEGRATION_TEST=1 and a local Qdrant is up;
// index-backed tests skip themselves in that case.
var testIndex *qdrant.Repository

func TestMain(m *testing.M) {
	if os.Getenv("INTEGRATION_TEST") == "1" {
		cfg := config.QdrantConfig{
			Host:       testQdrantHost,
			Port:       testQdrantPort,
			Collection: testCollection,
		}

		var err error
		testIndex, err = qdrant.NewRepository(cfg)
		if err != nil {
			panic("failed to create alias index: " + err.Error())
		}

		ctx := context.Background()
		_ = testIndex.DeleteCollection(ctx) // Ignore error if collection doesn't exist
		if err := testIndex.EnsureCollection(ctx, uint64(embedder.VectorSize)); err != nil {
			panic("failed to create collection: " + err.Error())
		}
	}

	code := m.Run()

	if testIndex != nil {
		_ = testIndex.DeleteCollection(context.Background())
		testIndex.Close()
	}

	os.Exit(code)
}

// requireIndex skips tests that need a live Qdrant.
func requireIndex(t *testing.T) *qdrant.Repository {
	t.Helper()
	if testIndex == nil {
		t.Skip("set INTEGRATION_TEST=1 with a local Qdrant to run alias index tests")
	}
	return testIndex
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

package store

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/dossier/pkg/processor"
)

// hashEmbedder maps text onto a tiny deterministic vector.
type hashEmbedder struct{ dim int }

func (e hashEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, e.dim)
		for j, r := range text {
			v[(j+int(r))%e.dim] += 1
		}
		out[i] = v
	}
	return out, nil
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "привет", sanitizeUTF8("привет"))
	assert.Equal(t, "ab", sanitizeUTF8("a\xffb"))
}

func TestVectorStoreRequiresEmbedder(t *testing.T) {
	_, err := NewVectorStore(context.Background(), VectorStoreConfig{ConnString: "postgres://localhost/none"})
	assert.Error(t, err)
}

func TestVectorStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	vs, err := NewVectorStore(ctx, VectorStoreConfig{
		ConnString: url,
		TableName:  "test_summaries",
		VectorDim:  16,
		Embedder:   hashEmbedder{dim: 16},
		Splitter:   processor.SplitterConfig{ChunkSize: 200, ChunkOverlap: 20, MinChunkLength: 10},
	})
	require.NoError(t, err)
	defer vs.Close()

	text := strings.Repeat("Компания открыла новый завод в Казани. ", 10) + "Выручка выросла на 12%."
	n, err := vs.Archive(ctx, Summary{INN: "7707083893", Kind: "company", Path: "/out/a.txt", Text: text})
	require.NoError(t, err)
	assert.Greater(t, n, 1)

	matches, err := vs.Query(ctx, "Выручка выросла", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "7707083893", matches[0].INN)
	assert.Equal(t, "company", matches[0].Kind)

	short := "Выручка выросла на 12%. Компания сменила директора."
	n, err = vs.Archive(ctx, Summary{INN: "7707083893", Kind: "company", Path: "/out/b.txt", Text: short})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	matches, err = vs.Query(ctx, "Компания", 100)
	require.NoError(t, err)
	var archived []Match
	for _, m := range matches {
		if m.INN == "7707083893" && m.Kind == "company" {
			archived = append(archived, m)
		}
	}
	require.Len(t, archived, 1, "chunks of the longer text must be gone")
	assert.Equal(t, "/out/b.txt", archived[0].Path)
	assert.Contains(t, archived[0].Content, "сменила директора")
}

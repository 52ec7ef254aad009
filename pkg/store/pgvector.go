package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xhad/dossier/internal/types"
	"github.com/xhad/dossier/pkg/logging"
	"github.com/xhad/dossier/pkg/processor"
)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	SearchLimit int
	Embedder    types.Embedder
	Splitter    processor.SplitterConfig
	Logger      *zap.Logger
}

// Summary is a text artifact to archive.
type Summary struct {
	INN  string
	Kind string // company, executive, market, final_report ...
	Path string
	Text string
}

// Match is an archived chunk returned by Query.
type Match struct {
	ID       string
	INN      string
	Kind     string
	Path     string
	Content  string
	Distance float64
	Metadata map[string]any
}

// VectorStore archives summaries as embedded chunks in Postgres.
type VectorStore struct {
	config   VectorStoreConfig
	pool     *pgxpool.Pool
	embedder types.Embedder
	splitter processor.Splitter
	logger   *zap.Logger
}

func NewVectorStore(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.Embedder == nil {
		return nil, eris.New("vector store: embedder is required")
	}
	if config.TableName == "" {
		config.TableName = "summaries"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to database")
	}

	vs := &VectorStore{
		config:   config,
		pool:     pool,
		embedder: config.Embedder,
		splitter: processor.NewSplitter(config.Splitter),
		logger:   logging.OrNop(config.Logger),
	}
	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return eris.Wrap(err, "failed to create vector extension")
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			inn TEXT NOT NULL,
			kind TEXT NOT NULL,
			path TEXT,
			chunk_index INTEGER,
			content TEXT,
			embedding vector(%d),
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.config.TableName, vs.config.VectorDim)
	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return eris.Wrap(err, "failed to create table")
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)
	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return eris.Wrap(err, "failed to create index")
	}
	return nil
}

// Archive splits, embeds and stores a summary, replacing every chunk
// previously archived for the same INN and kind. It returns the number of
// chunks written.
func (vs *VectorStore) Archive(ctx context.Context, s Summary) (int, error) {
	chunks := vs.splitter.Split(sanitizeUTF8(s.Text))
	if len(chunks) == 0 {
		return 0, nil
	}

	embeddings, err := vs.embedder.CreateEmbedding(ctx, chunks)
	if err != nil {
		return 0, eris.Wrap(err, "failed to create embeddings")
	}
	if len(embeddings) != len(chunks) {
		return 0, eris.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	metadata, err := json.Marshal(map[string]any{
		"archived_at": time.Now().UTC().Format(time.RFC3339),
		"chunks":      len(chunks),
	})
	if err != nil {
		return 0, eris.Wrap(err, "failed to encode metadata")
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	// a shorter re-archive must not leave chunks of the previous text behind
	purge := fmt.Sprintf("DELETE FROM %s WHERE inn = $1 AND kind = $2", vs.config.TableName)
	if _, err := tx.Exec(ctx, purge, s.INN, s.Kind); err != nil {
		return 0, eris.Wrapf(err, "failed to remove previous chunks of %s/%s", s.INN, s.Kind)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, inn, kind, path, chunk_index, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			path = EXCLUDED.path,
			chunk_index = EXCLUDED.chunk_index,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.config.TableName)

	for i, chunk := range chunks {
		id := fmt.Sprintf("%s_%s_%d", s.INN, s.Kind, i)
		_, err := tx.Exec(ctx, stmt, id, s.INN, s.Kind, s.Path, i, chunk, pgvector.NewVector(embeddings[i]), metadata)
		if err != nil {
			return 0, eris.Wrapf(err, "failed to insert chunk %s", id)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "failed to commit transaction")
	}

	vs.logger.Info("store: summary archived", zap.String("inn", s.INN), zap.String("kind", s.Kind), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Query returns the archived chunks closest to text by cosine distance.
func (vs *VectorStore) Query(ctx context.Context, text string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = vs.config.SearchLimit
	}
	embeddings, err := vs.embedder.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, eris.Wrap(err, "failed to embed query")
	}
	if len(embeddings) == 0 {
		return nil, eris.New("embedder returned no vector for query")
	}

	query := fmt.Sprintf(`
		SELECT id, inn, kind, path, content, metadata, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(embeddings[0]), limit)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query summaries")
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.INN, &m.Kind, &m.Path, &m.Content, &m.Metadata, &m.Distance); err != nil {
			return nil, eris.Wrap(err, "failed to scan row")
		}
		matches = append(matches, m)
	}
	return matches, eris.Wrap(rows.Err(), "failed to read rows")
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// sanitizeUTF8 drops invalid bytes; Postgres rejects them in TEXT columns.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}

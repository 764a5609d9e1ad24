// Package knowledge provides retrieval over the village culture and design
// case collections. Documents and their embeddings live in a single SQLite
// database; similarity is computed in process.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Collection names. These mirror the two corpora the agents query.
const (
	CollectionVillages    = "villages_knowledge"
	CollectionDesignCases = "design_cases"
)

// Embedder turns texts into vectors. The store degrades to lexical ranking
// when it is nil or failing.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Doc is one document to index.
type Doc struct {
	ID       string
	Document string
	Metadata map[string]string
}

// Match is one retrieval hit. Distance is cosine distance (0 identical,
// 2 opposite); lexical fallback maps overlap into the same ascending order.
type Match struct {
	ID       string
	Document string
	Metadata map[string]string
	Distance float64
}

// Store is the SQLite-backed knowledge base.
type Store struct {
	db       *sql.DB
	embedder Embedder
}

// Open creates or opens the knowledge database at dbPath.
func Open(dbPath string, embedder Embedder) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, embedder: embedder}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		document TEXT NOT NULL,
		metadata_json TEXT,
		embedding BLOB,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Add indexes docs into a collection, replacing documents with the same id.
// Embeddings are best-effort: when the embedder is absent or fails, documents
// are stored without vectors and lexical ranking takes over at query time.
func (s *Store) Add(ctx context.Context, collection string, docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}

	var vectors [][]float32
	if s.embedder != nil {
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.Document
		}
		vs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			slog.Warn("embedding failed, storing documents without vectors",
				"collection", collection, "error", err)
		} else if len(vs) == len(docs) {
			vectors = vs
		}
	}

	for i, d := range docs {
		var blob []byte
		if vectors != nil {
			blob = encodeVector(vectors[i])
		}
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", d.ID, err)
		}
		if err := s.execWithRetry(ctx,
			`INSERT OR REPLACE INTO documents (collection, id, document, metadata_json, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			collection, d.ID, d.Document, string(meta), blob, time.Now().Unix()); err != nil {
			return fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}

	return nil
}

// execWithRetry retries writes on SQLITE_BUSY with exponential backoff.
func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if isSQLiteConflict(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("knowledge store write conflict, retrying",
				"attempt", i+1, "delay", delay)
			time.Sleep(delay)
			continue
		}
		return err
	}
	return err
}

// isSQLiteConflict reports whether err is a SQLite concurrency error
// (SQLITE_BUSY or "database is locked") that warrants a retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Search returns up to topN matches for query, closest first.
func (s *Store) Search(ctx context.Context, collection, query string, topN int) ([]Match, error) {
	if topN <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, metadata_json, embedding FROM documents WHERE collection = ?`,
		collection)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	defer rows.Close()

	type record struct {
		match  Match
		vector []float32
	}
	var records []record
	for rows.Next() {
		var (
			r    record
			meta sql.NullString
			blob []byte
		)
		if err := rows.Scan(&r.match.ID, &r.match.Document, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &r.match.Metadata); err != nil {
				slog.Warn("skipping unreadable document metadata", "id", r.match.ID, "error", err)
			}
		}
		if len(blob) > 0 {
			r.vector = decodeVector(blob)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection %s: %w", collection, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	queryVec := s.embedQuery(ctx, query)

	matches := make([]Match, 0, len(records))
	for _, r := range records {
		m := r.match
		if queryVec != nil && r.vector != nil {
			sim, err := CosineSimilarity(queryVec, r.vector)
			if err != nil {
				m.Distance = lexicalDistance(query, m.Document)
			} else {
				m.Distance = 1 - sim
			}
		} else {
			m.Distance = lexicalDistance(query, m.Document)
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > topN {
		matches = matches[:topN]
	}
	return matches, nil
}

func (s *Store) embedQuery(ctx context.Context, query string) []float32 {
	if s.embedder == nil {
		return nil
	}
	vs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vs) != 1 {
		slog.Debug("query embedding unavailable, falling back to lexical ranking", "error", err)
		return nil
	}
	return vs[0]
}

// lexicalDistance ranks by term overlap between query and document. It maps
// overlap into [0,1] so results interleave sensibly with cosine distances.
func lexicalDistance(query, document string) float64 {
	terms := tokenize(query)
	if len(terms) == 0 {
		return 1
	}
	doc := strings.ToLower(document)
	hits := 0
	for _, t := range terms {
		if strings.Contains(doc, t) {
			hits++
		}
	}
	return 1 - float64(hits)/float64(len(terms))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', ',', '.', ';', ':', '，', '。', '、', '；', '：', '！', '？':
			return true
		}
		return false
	})
	var out []string
	for _, f := range fields {
		// CJK text rarely has spaces, so split runs into bigrams.
		runes := []rune(f)
		if len(runes) > 1 && isCJK(runes[0]) {
			for i := 0; i+1 < len(runes); i++ {
				out = append(out, string(runes[i:i+2]))
			}
			continue
		}
		out = append(out, f)
	}
	return out
}

func isCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// Package vectorstore persists indexed notes and their embeddings in SQLite
// and serves filtered nearest-neighbor queries over them.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tofunori/obsidian-mcp/internal/fusion"
	"github.com/tofunori/obsidian-mcp/internal/models"
	"github.com/tofunori/obsidian-mcp/internal/rank"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id          TEXT PRIMARY KEY,
	document    TEXT NOT NULL DEFAULT '',
	embedding   BLOB,
	location    TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '',
	extra       TEXT NOT NULL DEFAULT '{}',
	checksum    TEXT NOT NULL DEFAULT '',
	modified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notes_location ON notes(location);
`

// Record is one note as stored: the embeddable document text, its vector,
// and the display attributes.
type Record struct {
	ID         string
	Document   string
	Embedding  []float32
	Attrs      models.Attributes
	Checksum   string
	ModifiedAt time.Time
}

// Candidate is one nearest-neighbor hit. Distance is cosine distance
// (1 - cosine similarity), smaller is closer.
type Candidate struct {
	ID       string
	Document string
	Attrs    models.Attributes
	Distance float64
}

// Store wraps a SQLite database holding the indexed notes.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vectorstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vectorstore: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Upsert inserts or replaces a record keyed by its identity.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	extraJSON, _ := json.Marshal(rec.Attrs.Extra)
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO notes (id, document, embedding, location, title, tags, extra, checksum, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document    = excluded.document,
			embedding   = excluded.embedding,
			location    = excluded.location,
			title       = excluded.title,
			tags        = excluded.tags,
			extra       = excluded.extra,
			checksum    = excluded.checksum,
			modified_at = excluded.modified_at
	`, rec.ID, rec.Document, encodeVector(rec.Embedding), rec.Attrs.Location,
		rec.Attrs.Title, rec.Attrs.TagString(), string(extraJSON), rec.Checksum, rec.ModifiedAt)
	if err != nil {
		return fmt.Errorf("vectorstore: upsert %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes the record for id. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("vectorstore: delete %s: %w", id, err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("vectorstore: count: %w", err)
	}
	return n, nil
}

// Checksums returns the stored checksum per identity, for incremental
// indexing diffs.
func (s *Store) Checksums(ctx context.Context) (map[string]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// GetEmbedding returns the stored vector for id. The bool is false when the
// id is unknown or was stored without an embedding.
func (s *Store) GetEmbedding(ctx context.Context, id string) ([]float32, bool, error) {
	var blob []byte
	err := s.conn.QueryRowContext(ctx, `SELECT embedding FROM notes WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("vectorstore: get embedding %s: %w", id, err)
	}
	vec := decodeVector(blob)
	return vec, len(vec) > 0, nil
}

// Get returns all stored candidates matching the filter, without distance
// scoring. A nil filter returns everything.
func (s *Store) Get(ctx context.Context, filter fusion.Filter) ([]Candidate, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, document, location, title, tags, extra FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, _, err := scanCandidate(rows, false)
		if err != nil {
			return nil, err
		}
		if fusion.Evaluate(c.Attrs, filter) {
			out = append(out, c)
		}
	}
	return out, rows.Err()
}

// Query returns the n records closest to vec by cosine distance, restricted
// to those matching the filter. Rows stored without an embedding are skipped.
// Similarity is computed in Go over a full table scan.
func (s *Store) Query(ctx context.Context, vec []float32, n int, filter fusion.Filter) ([]Candidate, error) {
	if n <= 0 || len(vec) == 0 {
		return nil, nil
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT id, document, location, title, tags, extra, embedding FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, embedding, err := scanCandidate(rows, true)
		if err != nil {
			return nil, err
		}
		if len(embedding) == 0 || !fusion.Evaluate(c.Attrs, filter) {
			continue
		}
		sim, ok := cosineSimilarity(vec, embedding)
		if !ok {
			continue
		}
		c.Distance = 1 - sim
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if n < len(out) {
		out = out[:n]
	}
	return out, nil
}

// Snapshot returns the full corpus as ranker documents. It implements
// rank.CorpusSource, so the lexical index builds straight off the store.
func (s *Store) Snapshot(ctx context.Context) ([]rank.Document, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, document, location, title, tags, extra FROM notes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: snapshot: %w", err)
	}
	defer rows.Close()

	var out []rank.Document
	for rows.Next() {
		c, _, err := scanCandidate(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, rank.Document{ID: c.ID, Text: c.Document, Attrs: c.Attrs})
	}
	return out, rows.Err()
}

func scanCandidate(rows *sql.Rows, withEmbedding bool) (Candidate, []float32, error) {
	var (
		c         Candidate
		tags      string
		extraJSON string
		blob      []byte
	)
	dest := []any{&c.ID, &c.Document, &c.Attrs.Location, &c.Attrs.Title, &tags, &extraJSON}
	if withEmbedding {
		dest = append(dest, &blob)
	}
	if err := rows.Scan(dest...); err != nil {
		return Candidate{}, nil, fmt.Errorf("vectorstore: scan row: %w", err)
	}
	c.Attrs.Tags = splitTags(tags)
	if extraJSON != "" && extraJSON != "{}" {
		_ = json.Unmarshal([]byte(extraJSON), &c.Attrs.Extra)
	}
	return c, decodeVector(blob), nil
}

package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"engram/internal/logging"
)

// Local stores vectors in a SQLite file as little-endian float32 blobs
// and ranks with in-process cosine. Built with the sqlite_vec tag, the
// ranking is pushed into SQL through the vec extension instead.
type Local struct {
	db   *sql.DB
	path string
}

// NewLocal opens (or creates) the local vector database.
func NewLocal(path string) (*Local, error) {
	logging.Vector("Opening local vector store at %s", path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open(sqliteDriver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.VectorDebug("Failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS vector_point (
		collection   TEXT NOT NULL,
		point_id     TEXT NOT NULL,
		dim          INTEGER NOT NULL,
		vector       BLOB NOT NULL,
		payload_json TEXT DEFAULT '{}',
		PRIMARY KEY (collection, point_id)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vector table: %w", err)
	}
	l := &Local{db: db, path: path}
	if vecExtension {
		logging.Vector("sqlite-vec extension compiled in; SQL-side cosine enabled")
	}
	return l, nil
}

// Close closes the vector database.
func (l *Local) Close() error {
	return l.db.Close()
}

// Name implements Store.
func (l *Local) Name() string { return "local" }

// EnsureCollection implements Store. Collections are rows in a shared
// table, so there is nothing to create; the dimensionality is checked
// against any existing points.
func (l *Local) EnsureCollection(ctx context.Context, collection string, dim int) error {
	var existing int
	err := l.db.QueryRowContext(ctx,
		`SELECT dim FROM vector_point WHERE collection = ? LIMIT 1`, collection,
	).Scan(&existing)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to inspect collection: %w", err)
	}
	if existing != dim {
		return fmt.Errorf("collection %s holds %d-dim vectors, got %d", collection, existing, dim)
	}
	return nil
}

// Upsert implements Store.
func (l *Local) Upsert(ctx context.Context, collection, pointID string, vec []float32, payload map[string]any) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("failed to upsert point: empty vector")
	}
	payloadJSON := "{}"
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			payloadJSON = string(b)
		}
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO vector_point (collection, point_id, dim, vector, payload_json)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection, point_id) DO UPDATE SET
		   dim = excluded.dim,
		   vector = excluded.vector,
		   payload_json = excluded.payload_json`,
		collection, pointID, len(vec), encodeVector(vec), payloadJSON,
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert point: %w", err)
	}
	logging.VectorDebug("Upserted point %s into local:%s (%d dims)", pointID, collection, len(vec))
	return Ref("local", collection, pointID), nil
}

// Search implements Store with in-process cosine ranking and payload
// post-filtering.
func (l *Local) Search(ctx context.Context, collection string, vec []float32, limit int, filter map[string]string) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	if vecExtension {
		hits, err := l.searchSQL(ctx, collection, vec, limit, filter)
		if err == nil {
			return hits, nil
		}
		logging.VectorWarn("SQL-side search failed, falling back to brute force: %v", err)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT point_id, vector, payload_json FROM vector_point WHERE collection = ?`, collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var pointID, payloadJSON string
		var blob []byte
		if err := rows.Scan(&pointID, &blob, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		payload := map[string]any{}
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			payload = map[string]any{}
		}
		if !matchesFilter(payload, filter) {
			continue
		}
		score := Cosine(vec, decodeVector(blob))
		hits = append(hits, Hit{PointID: pointID, Score: score, Payload: payload})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate points: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Healthy implements Store; the local file is healthy when queryable.
func (l *Local) Healthy(ctx context.Context) bool {
	var n int
	return l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_point`).Scan(&n) == nil
}

func matchesFilter(payload map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		got, ok := payload[k].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

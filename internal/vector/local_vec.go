//go:build sqlite_vec && cgo

package vector

import (
	"context"
	"encoding/json"
	"fmt"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// sqlite_vec build: cgo SQLite driver with the vec extension
// auto-registered, so cosine distance runs inside SQL.
const (
	sqliteDriver = "sqlite3"
	vecExtension = true
)

func init() {
	vec.Auto()
}

func (l *Local) searchSQL(ctx context.Context, collection string, query []float32, limit int, filter map[string]string) ([]Hit, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT point_id, payload_json, vec_distance_cosine(vector, ?) AS dist
		 FROM vector_point WHERE collection = ?
		 ORDER BY dist ASC LIMIT ?`,
		encodeVector(query), collection, limit*4,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run vec search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var pointID, payloadJSON string
		var dist float64
		if err := rows.Scan(&pointID, &payloadJSON, &dist); err != nil {
			return nil, fmt.Errorf("failed to scan vec hit: %w", err)
		}
		payload := map[string]any{}
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			payload = map[string]any{}
		}
		if !matchesFilter(payload, filter) {
			continue
		}
		hits = append(hits, Hit{PointID: pointID, Score: 1 - dist, Payload: payload})
		if len(hits) >= limit {
			break
		}
	}
	return hits, rows.Err()
}

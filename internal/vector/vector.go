// Package vector provides the object-store abstraction for embedding
// vectors: a Qdrant HTTP client and a SQLite-backed local store that
// keeps the engine fully offline-capable. Both produce vector refs of
// the form "<store>:<collection>:<point_id>".
package vector

import (
	"context"
	"math"
	"strings"
)

// Collections used at ingest time.
const (
	CollectionText   = "text"
	CollectionVision = "vision"
)

// Hit is one nearest-neighbor search result.
type Hit struct {
	PointID string
	Score   float64
	Payload map[string]any
}

// Store is the object-store interface shared by the Qdrant client and
// the local SQLite store.
type Store interface {
	// Name is the ref prefix: "qdrant" or "local".
	Name() string
	// EnsureCollection creates the collection if missing, with the
	// dimensionality reported by the embedding model.
	EnsureCollection(ctx context.Context, collection string, dim int) error
	// Upsert writes one point and returns its vector ref.
	Upsert(ctx context.Context, collection, pointID string, vec []float32, payload map[string]any) (string, error)
	// Search returns the nearest neighbors of vec, optionally filtered
	// by exact-match payload fields.
	Search(ctx context.Context, collection string, vec []float32, limit int, filter map[string]string) ([]Hit, error)
	// Healthy reports whether the store is reachable.
	Healthy(ctx context.Context) bool
}

// Ref builds a vector reference string.
func Ref(store, collection, pointID string) string {
	return store + ":" + collection + ":" + pointID
}

// ParseRef splits a vector reference into its parts.
func ParseRef(ref string) (store, collection, pointID string, ok bool) {
	parts := strings.SplitN(ref, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// Cosine returns the cosine similarity of two vectors, 0 for mismatched
// or zero-length inputs.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Normalize scales a vector to unit length in place and returns it.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

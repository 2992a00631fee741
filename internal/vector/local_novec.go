//go:build !sqlite_vec || !cgo

package vector

import (
	"context"

	_ "modernc.org/sqlite"
)

// Default build: pure-Go SQLite driver, cosine computed in process.
const (
	sqliteDriver = "sqlite"
	vecExtension = false
)

func (l *Local) searchSQL(ctx context.Context, collection string, vec []float32, limit int, filter map[string]string) ([]Hit, error) {
	panic("searchSQL requires the sqlite_vec build tag")
}

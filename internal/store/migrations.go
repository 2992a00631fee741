package store

import (
	"database/sql"
	"fmt"

	"engram/internal/logging"
)

// schema is the current full schema. Every statement is idempotent so a
// fresh open and a re-open of an existing database take the same path.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS blob (
		blob_id    TEXT PRIMARY KEY,
		sha256     TEXT NOT NULL,
		path       TEXT NOT NULL,
		mime       TEXT DEFAULT '',
		size_bytes INTEGER DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE(sha256, path)
	)`,
	`CREATE TABLE IF NOT EXISTS source (
		source_id   TEXT PRIMARY KEY,
		source_type TEXT NOT NULL,
		uri         TEXT NOT NULL UNIQUE,
		created_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS file_state (
		path       TEXT PRIMARY KEY,
		mtime_ns   INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL,
		sha256     TEXT DEFAULT '',
		last_seen  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS job (
		job_id       TEXT PRIMARY KEY,
		type         TEXT NOT NULL,
		status       TEXT NOT NULL,
		payload_json TEXT NOT NULL DEFAULT '{}',
		attempts     INTEGER DEFAULT 0,
		error        TEXT DEFAULT '',
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_status ON job(status, created_at)`,
	`CREATE TABLE IF NOT EXISTS memory_card (
		memory_id     TEXT PRIMARY KEY,
		card_type     TEXT DEFAULT 'note',
		summary       TEXT DEFAULT '',
		content_text  TEXT DEFAULT '',
		metadata_json TEXT DEFAULT '{}',
		created_at    TEXT NOT NULL,
		source_time   TEXT DEFAULT ''
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS memory_card_fts USING fts5(
		summary, memory_id UNINDEXED
	)`,
	`CREATE TABLE IF NOT EXISTS embedding (
		embedding_id TEXT PRIMARY KEY,
		memory_id    TEXT NOT NULL,
		modality     TEXT NOT NULL,
		vector_ref   TEXT NOT NULL,
		created_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_embedding_memory ON embedding(memory_id)`,
	`CREATE TABLE IF NOT EXISTS graph_node (
		node_id    TEXT PRIMARY KEY,
		node_type  TEXT NOT NULL,
		props_json TEXT DEFAULT '{}',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_node_type ON graph_node(node_type)`,
	`CREATE TABLE IF NOT EXISTS graph_edge (
		edge_id         TEXT PRIMARY KEY,
		from_node_id    TEXT NOT NULL,
		to_node_id      TEXT NOT NULL,
		edge_type       TEXT NOT NULL,
		weight          REAL DEFAULT 0.5,
		valid_from      TEXT DEFAULT '',
		valid_to        TEXT DEFAULT '',
		provenance_json TEXT DEFAULT '{}',
		created_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_edge_from ON graph_edge(from_node_id)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_edge_to ON graph_edge(to_node_id)`,
	`CREATE TABLE IF NOT EXISTS tool_call (
		call_id      TEXT PRIMARY KEY,
		tool_name    TEXT NOT NULL,
		ts           TEXT NOT NULL,
		inputs_json  TEXT DEFAULT '{}',
		outputs_json TEXT DEFAULT '{}',
		status       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exec_node (
		exec_node_id TEXT PRIMARY KEY,
		call_id      TEXT NOT NULL,
		trace_id     TEXT DEFAULT '',
		tool_name    TEXT NOT NULL,
		state        TEXT NOT NULL,
		attempt      INTEGER DEFAULT 1,
		timeout_ms   INTEGER DEFAULT 0,
		started_at   TEXT NOT NULL,
		finished_at  TEXT DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_exec_node_trace ON exec_node(trace_id)`,
	`CREATE TABLE IF NOT EXISTS exec_edge (
		from_exec_node_id TEXT NOT NULL,
		to_exec_node_id   TEXT NOT NULL,
		condition         TEXT DEFAULT 'sequential',
		trace_id          TEXT DEFAULT '',
		PRIMARY KEY (from_exec_node_id, to_exec_node_id)
	)`,
	`CREATE TABLE IF NOT EXISTS exec_trace (
		trace_id      TEXT PRIMARY KEY,
		status        TEXT NOT NULL,
		metadata_json TEXT DEFAULT '{}',
		started_at    TEXT NOT NULL,
		finished_at   TEXT DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_turn (
		turn_id        TEXT PRIMARY KEY,
		user_text      TEXT NOT NULL,
		assistant_text TEXT DEFAULT '',
		verdict        TEXT DEFAULT '',
		trace_id       TEXT DEFAULT '',
		created_at     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_citation (
		citation_id TEXT PRIMARY KEY,
		turn_id     TEXT NOT NULL,
		memory_id   TEXT NOT NULL,
		quote       TEXT DEFAULT '',
		span_start  INTEGER DEFAULT 0,
		span_end    INTEGER DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_citation_turn ON chat_citation(turn_id)`,
}

// Migration is one guarded ADD COLUMN for databases created by older builds.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations upgrades pre-existing databases in place. Additive
// only; destructive changes are never applied.
var pendingMigrations = []Migration{
	{"memory_card", "content_text", "TEXT DEFAULT ''"},
	{"memory_card", "metadata_json", "TEXT DEFAULT '{}'"},
	{"memory_card", "source_time", "TEXT DEFAULT ''"},
	{"exec_node", "trace_id", "TEXT DEFAULT ''"},
	{"exec_node", "timeout_ms", "INTEGER DEFAULT 0"},
	{"conversation_turn", "verdict", "TEXT DEFAULT ''"},
	{"conversation_turn", "trace_id", "TEXT DEFAULT ''"},
	{"graph_edge", "provenance_json", "TEXT DEFAULT '{}'"},
	{"job", "error", "TEXT DEFAULT ''"},
}

func (s *Store) initialize() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) runMigrations() error {
	timer := logging.StartTimer(logging.CategoryStore, "runMigrations")
	defer timer.Stop()

	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(s.db, m.Table) {
			logging.StoreDebug("Table missing, skipping migration: %s.%s", m.Table, m.Column)
			continue
		}
		if columnExists(s.db, m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration %s.%s: %w", m.Table, m.Column, err)
		}
		logging.Store("Applied migration: %s.%s", m.Table, m.Column)
		applied++
	}
	if applied > 0 {
		logging.Store("Schema migrations applied: %d", applied)
	}
	return nil
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRow(query, table).Scan(&count); err != nil {
		logging.StoreDebug("Table existence check failed for %s: %v", table, err)
		return false
	}
	return count > 0
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		logging.StoreDebug("PRAGMA table_info(%s) failed: %v", table, err)
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

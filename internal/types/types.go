// Package types holds the shared domain records: blobs, sources, jobs,
// memory cards, graph nodes/edges, tool-call and trace records, and the
// deterministic id helpers that tie them together.
package types

import "time"

// Job statuses.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"
)

// Job types.
const (
	JobIngestBlob    = "ingest_blob"
	JobIngestCapture = "ingest_capture"
)

// Trace / step statuses.
const (
	StatusOK             = "ok"
	StatusError          = "error"
	StatusTimeout        = "timeout"
	StatusRunning        = "running"
	StatusDone           = "done"
	StatusRejected       = "rejected"
	StatusIdempotentSkip = "idempotent_skip"
	StatusPartial        = "partial"
)

// Verifier verdicts.
const (
	VerdictPass    = "pass"
	VerdictRevise  = "revise"
	VerdictAbstain = "abstain"
)

// Graph node types.
const (
	NodeMemoryCard = "MemoryCard"
	NodePerson     = "Person"
	NodeOrg        = "Org"
	NodePlace      = "Place"
	NodeProject    = "Project"
	NodeTopic      = "Topic"
	NodeTechnology = "Technology"
	NodeComponent  = "Component"
	NodeOther      = "Other"
)

// Graph edge types.
const (
	EdgeMentions = "MENTIONS"
	EdgeAbout    = "ABOUT"
	EdgeFollows  = "FOLLOWS"
	EdgeSupports = "SUPPORTS"
	EdgeRelated  = "RELATED"
)

// Card limits, enforced at commit time.
const (
	MaxSummaryChars = 400
	MaxContentChars = 200000
)

// Blob is a content-addressed artifact on disk.
type Blob struct {
	BlobID string `json:"blob_id"`
	SHA256 string `json:"sha256"`
	Path   string `json:"path"`
	Mime   string `json:"mime"`
	Size   int64  `json:"size_bytes"`
}

// Source is an external origin of captured content.
type Source struct {
	SourceID   string `json:"source_id"`
	SourceType string `json:"source_type"` // filesystem, browser, browser_research
	URI        string `json:"uri"`
}

// FileState is the watcher's view of one path.
type FileState struct {
	Path     string    `json:"path"`
	MtimeNS  int64     `json:"mtime_ns"`
	Size     int64     `json:"size_bytes"`
	SHA256   string    `json:"sha256"`
	LastSeen time.Time `json:"last_seen"`
}

// Job is one queue entry.
type Job struct {
	JobID     string         `json:"job_id"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload"`
	Attempts  int            `json:"attempts"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// MemoryCard is the unit of stored knowledge.
type MemoryCard struct {
	MemoryID    string         `json:"memory_id"`
	CardType    string         `json:"card_type"`
	Summary     string         `json:"summary"`
	ContentText string         `json:"content_text"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   string         `json:"created_at"`
	SourceTime  string         `json:"source_time,omitempty"`
}

// Embedding links a memory card to a vector in the object store.
type Embedding struct {
	EmbeddingID string `json:"embedding_id"`
	MemoryID    string `json:"memory_id"`
	Modality    string `json:"modality"` // text, vision
	VectorRef   string `json:"vector_ref"`
}

// GraphNode is one property-graph node.
type GraphNode struct {
	NodeID    string         `json:"node_id"`
	NodeType  string         `json:"node_type"`
	Props     map[string]any `json:"props"`
	CreatedAt string         `json:"created_at,omitempty"`
}

// GraphEdge is one property-graph edge.
type GraphEdge struct {
	EdgeID     string         `json:"edge_id"`
	FromNodeID string         `json:"from_node_id"`
	ToNodeID   string         `json:"to_node_id"`
	EdgeType   string         `json:"edge_type"`
	Weight     float64        `json:"weight"`
	ValidFrom  string         `json:"valid_from,omitempty"`
	ValidTo    string         `json:"valid_to,omitempty"`
	Provenance map[string]any `json:"provenance,omitempty"`
}

// ToolCall is the persisted record of one tool invocation.
type ToolCall struct {
	CallID    string         `json:"call_id"`
	ToolName  string         `json:"tool_name"`
	Timestamp time.Time      `json:"ts"`
	Inputs    map[string]any `json:"inputs"`
	Outputs   map[string]any `json:"outputs"`
	Status    string         `json:"status"`
}

// ExecNode is one step of an execution trace.
type ExecNode struct {
	ExecNodeID string    `json:"exec_node_id"`
	CallID     string    `json:"call_id"`
	TraceID    string    `json:"trace_id"`
	ToolName   string    `json:"tool_name"`
	State      string    `json:"state"` // running, ok, error, timeout
	Attempt    int       `json:"attempt"`
	TimeoutMS  int       `json:"timeout_ms"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// ExecEdge joins two exec nodes of the same trace.
type ExecEdge struct {
	FromExecNodeID string `json:"from_exec_node_id"`
	ToExecNodeID   string `json:"to_exec_node_id"`
	Condition      string `json:"condition"`
	TraceID        string `json:"trace_id"`
}

// ExecTrace is one whole pipeline execution.
type ExecTrace struct {
	TraceID    string         `json:"trace_id"`
	Status     string         `json:"status"`
	Metadata   map[string]any `json:"metadata"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
}

// ConversationTurn is one chat exchange.
type ConversationTurn struct {
	TurnID        string    `json:"turn_id"`
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	Verdict       string    `json:"verdict"`
	TraceID       string    `json:"trace_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChatCitation grounds one answer fragment in a memory card.
type ChatCitation struct {
	CitationID string `json:"citation_id"`
	TurnID     string `json:"turn_id"`
	MemoryID   string `json:"memory_id"`
	Quote      string `json:"quote"`
	SpanStart  int    `json:"span_start,omitempty"`
	SpanEnd    int    `json:"span_end,omitempty"`
}

// Entity is one structured extraction result.
type Entity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

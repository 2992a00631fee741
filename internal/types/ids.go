package types

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// NewID returns an opaque 128-bit hex identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// MemoryNodeID returns the graph node id for a memory card.
func MemoryNodeID(memoryID string) string {
	return "mem:" + memoryID
}

// EntityNodeID derives the stable graph node id for an entity.
// Identical (type, canonical) pairs always map to the same node.
func EntityNodeID(nodeType, canonical string) string {
	h := sha1.Sum([]byte(nodeType + "|" + canonical))
	return "ent:" + hex.EncodeToString(h[:])[:16]
}

// EdgeID derives the deterministic edge id so re-insertion is idempotent.
// Absent validity bounds render as empty strings.
func EdgeID(fromNodeID, edgeType, toNodeID, validFrom, validTo string) string {
	raw := strings.Join([]string{fromNodeID, edgeType, toNodeID, validFrom, validTo}, "|")
	h := sha1.Sum([]byte(raw))
	return hex.EncodeToString(h[:])[:32]
}

// CanonicalPayload serializes a job payload with sorted keys so that the
// queue's duplicate check compares byte-equal strings for equal payloads.
func CanonicalPayload(payload map[string]any) string {
	if payload == nil {
		return "{}"
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(payload[k])
		if err != nil {
			vb = []byte(`null`)
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"engram/internal/logging"
	"engram/internal/vector"
)

// StubDim is the dimensionality of the deterministic fallback vectors.
const StubDim = 256

// availabilityTTL bounds how long a probe result is trusted, so a
// transiently-down server is retried rather than cached forever.
const availabilityTTL = 30 * time.Second

// Embedder produces text embeddings through the model server, falling
// back to deterministic hash vectors when the server is unreachable.
// Queries and documents embedded by the same path stay comparable.
type Embedder struct {
	client *Client

	mu        sync.Mutex
	available bool
	probedAt  time.Time
	dim       int
}

// NewEmbedder wraps a model client. A nil client forces stub mode.
func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// Embed returns a unit-normalized embedding and whether the model
// server produced it.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, bool, error) {
	if e.client != nil && e.serverAvailable(ctx) {
		vec, err := e.client.Embed(ctx, text)
		if err == nil {
			e.mu.Lock()
			e.dim = len(vec)
			e.mu.Unlock()
			return vector.Normalize(vec), true, nil
		}
		logging.LLMWarn("Embedding via model failed, using stub: %v", err)
		e.mu.Lock()
		e.available = false
		e.mu.Unlock()
	}
	return StubVector(text, StubDim), false, nil
}

// Dim returns the dimensionality the next Embed call will produce.
func (e *Embedder) Dim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.available && e.dim > 0 {
		return e.dim
	}
	return StubDim
}

func (e *Embedder) serverAvailable(ctx context.Context) bool {
	e.mu.Lock()
	fresh := time.Since(e.probedAt) < availabilityTTL
	avail := e.available
	e.mu.Unlock()
	if fresh {
		return avail
	}

	avail = e.client.Available(ctx)
	e.mu.Lock()
	e.available = avail
	e.probedAt = time.Now()
	e.mu.Unlock()
	if !avail {
		logging.LLMDebug("Embedding server unavailable; stub vectors in use")
	}
	return avail
}

// StubVector derives a deterministic unit-norm vector from a seed
// string. Equal seeds always produce equal vectors.
func StubVector(seed string, dim int) []float32 {
	if dim <= 0 {
		dim = StubDim
	}
	vec := make([]float32, dim)
	var block [32]byte
	for i := 0; i < dim; i++ {
		if i%8 == 0 {
			block = sha256.Sum256([]byte(fmt.Sprintf("%s|%d", seed, i/8)))
		}
		bits := binary.LittleEndian.Uint32(block[(i%8)*4:])
		// Map to [-1, 1).
		vec[i] = float32(int32(bits)) / float32(1<<31)
	}
	return vector.Normalize(vec)
}

// StubVectorFromBytes derives a deterministic unit-norm vector from raw
// bytes, used for offline vision embeddings.
func StubVectorFromBytes(data []byte, dim int) []float32 {
	sum := sha256.Sum256(data)
	return StubVector(fmt.Sprintf("%x", sum), dim)
}

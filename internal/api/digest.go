package api

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"engram/internal/logging"
	"engram/internal/types"
)

// digestWindows maps the window query parameter to its lookback span.
var digestWindows = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

const (
	digestDefaultLimit = 10
	digestMaxLimit     = 50
	digestTitleChars   = 80
	digestSummaryChars = 200
	digestTopicMin     = 2
	digestTopicLimit   = 5
)

// digestMemory is one recent card in the feed.
type digestMemory struct {
	MemoryID   string `json:"memory_id"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Mime       string `json:"mime,omitempty"`
	SourceType string `json:"source_type,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// digestReminder surfaces one extracted action item.
type digestReminder struct {
	MemoryID string `json:"memory_id"`
	Title    string `json:"title"`
	Text     string `json:"text"`
}

// digestTopic is an entity mentioned repeatedly inside the window.
type digestTopic struct {
	Entity      string `json:"entity"`
	Type        string `json:"type"`
	CountRecent int    `json:"count_recent"`
}

// digestActivity counts new cards by broad media category.
type digestActivity struct {
	Total  int `json:"total"`
	Images int `json:"images"`
	Audio  int `json:"audio"`
	Video  int `json:"video"`
	Files  int `json:"files"`
}

// handleDigest rolls recent activity into a daily-digest view: new
// cards with titles, extracted action items, emerging entities, and
// per-category counts over the requested window.
func (s *Server) handleDigest(c *gin.Context) {
	window := c.DefaultQuery("window", "24h")
	span, ok := digestWindows[window]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "window must be one of 24h, 7d, 30d"})
		return
	}
	limit := intQuery(c, "limit", digestDefaultLimit)
	if limit <= 0 {
		limit = digestDefaultLimit
	}
	if limit > digestMaxLimit {
		limit = digestMaxLimit
	}

	now := time.Now().UTC()
	cutoff := now.Add(-span).Format(time.RFC3339)

	cards, err := s.store.ListCardsSince(cutoff, limit)
	if err != nil {
		logging.APIError("Digest card query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build digest"})
		return
	}

	memories := make([]digestMemory, 0, len(cards))
	reminders := []digestReminder{}
	var activity digestActivity
	for _, card := range cards {
		title := cardTitle(card)
		mime, _ := card.Metadata["mime"].(string)
		sourceType, _ := card.Metadata["source_type"].(string)

		memories = append(memories, digestMemory{
			MemoryID:   card.MemoryID,
			Title:      title,
			Summary:    types.TruncateChars(card.Summary, digestSummaryChars),
			Mime:       mime,
			SourceType: sourceType,
			CreatedAt:  card.CreatedAt,
		})

		activity.Total++
		switch {
		case strings.HasPrefix(mime, "image/"):
			activity.Images++
		case strings.HasPrefix(mime, "audio/"):
			activity.Audio++
		case strings.HasPrefix(mime, "video/"):
			activity.Video++
		default:
			activity.Files++
		}

		actions, _ := card.Metadata["actions"].([]any)
		for _, a := range actions {
			text, _ := a.(string)
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			reminders = append(reminders, digestReminder{
				MemoryID: card.MemoryID,
				Title:    title,
				Text:     text,
			})
			if len(reminders) == limit {
				break
			}
		}
	}

	topics := []digestTopic{}
	entities, err := s.store.RecentEntityActivity(cutoff, digestTopicMin, digestTopicLimit)
	if err != nil {
		logging.APIError("Digest entity query failed: %v", err)
	} else {
		for _, e := range entities {
			topics = append(topics, digestTopic{
				Entity:      e.Label,
				Type:        e.NodeType,
				CountRecent: e.Count,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"window":           window,
		"generated_at":     now.Format(time.RFC3339),
		"recent_memories":  memories,
		"reminders":        reminders,
		"emerging_topics":  topics,
		"activity_summary": activity,
	})
}

// cardTitle picks a short human label: the file name when the card came
// from a file, otherwise the leading summary text.
func cardTitle(card *types.MemoryCard) string {
	if title, _ := card.Metadata["title"].(string); title != "" {
		return title
	}
	if path, _ := card.Metadata["path"].(string); path != "" {
		return filepath.Base(path)
	}
	if card.Summary != "" {
		return types.TruncateChars(card.Summary, digestTitleChars)
	}
	return types.TruncateChars(card.MemoryID, 16)
}

// handleGraphNode returns a node with its one-hop neighborhood, for
// graph browsing.
func (s *Server) handleGraphNode(c *gin.Context) {
	id := c.Param("id")
	var edgeTypes []string
	if et := c.Query("edge_types"); et != "" {
		edgeTypes = strings.Split(et, ",")
	}
	res, err := s.graph.Neighbors(
		id,
		c.DefaultQuery("direction", "both"),
		edgeTypes,
		c.Query("from"),
		c.Query("to"),
		intQuery(c, "limit", 50),
	)
	if err != nil {
		logging.APIError("Graph neighbors failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load node"})
		return
	}
	if res.Node == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
		return
	}
	c.JSON(http.StatusOK, res)
}

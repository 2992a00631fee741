// Package graph implements entity canonicalization, the property-graph
// service (node/edge upsert, neighbors, bounded expansion), and the
// duplicate-entity compaction pass.
package graph

import (
	"strings"
	"unicode"

	"engram/internal/types"
)

// typeSynonyms collapses extractor type spellings onto the controlled
// node-type vocabulary.
var typeSynonyms = map[string]string{
	"person":       types.NodePerson,
	"people":       types.NodePerson,
	"human":        types.NodePerson,
	"individual":   types.NodePerson,
	"org":          types.NodeOrg,
	"organization": types.NodeOrg,
	"organisation": types.NodeOrg,
	"company":      types.NodeOrg,
	"team":         types.NodeOrg,
	"institution":  types.NodeOrg,
	"place":        types.NodePlace,
	"location":     types.NodePlace,
	"city":         types.NodePlace,
	"country":      types.NodePlace,
	"region":       types.NodePlace,
	"project":      types.NodeProject,
	"initiative":   types.NodeProject,
	"topic":        types.NodeTopic,
	"subject":      types.NodeTopic,
	"concept":      types.NodeTopic,
	"technology":   types.NodeTechnology,
	"tech":         types.NodeTechnology,
	"tool":         types.NodeTechnology,
	"language":     types.NodeTechnology,
	"framework":    types.NodeTechnology,
	"component":    types.NodeComponent,
	"module":       types.NodeComponent,
	"service":      types.NodeComponent,
	"other":        types.NodeOther,
	"misc":         types.NodeOther,
}

// properNounTypes never get singularized; their trailing "s" is part of
// the name.
var properNounTypes = map[string]bool{
	types.NodePerson:  true,
	types.NodeOrg:     true,
	types.NodePlace:   true,
	types.NodeProject: true,
}

var leadingArticles = map[string]bool{"a": true, "an": true, "the": true}

// NormalizeEntityType maps a raw extractor type onto the controlled
// vocabulary; unknown types become Other.
func NormalizeEntityType(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if mapped, ok := typeSynonyms[key]; ok {
		return mapped
	}
	// Already-canonical spellings pass through.
	switch strings.TrimSpace(raw) {
	case types.NodePerson, types.NodeOrg, types.NodePlace, types.NodeProject,
		types.NodeTopic, types.NodeTechnology, types.NodeComponent, types.NodeOther:
		return strings.TrimSpace(raw)
	}
	return types.NodeOther
}

// CanonicalizeEntityName produces the stable lowercase key that
// derives the entity node id. The steps run in strict order; changing
// the order changes every derived id.
func CanonicalizeEntityName(name, entityType string) string {
	s := strings.TrimSpace(name)
	s = strings.ToLower(s)

	// Normalize fancy quotes before any stripping.
	replacer := strings.NewReplacer("’", "'", "‘", "'", "“", `"`, "”", `"`)
	s = replacer.Replace(s)

	// Strip enclosing quotes or brackets.
	s = strings.Trim(s, `'"([{)]}`)

	// Remove punctuation except internal hyphen and apostrophe.
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(' ')
		}
	}
	s = b.String()

	// Collapse whitespace.
	s = strings.Join(strings.Fields(s), " ")

	// Strip one leading article.
	if idx := strings.IndexByte(s, ' '); idx > 0 && leadingArticles[s[:idx]] {
		s = s[idx+1:]
	}

	// Simple singularization, only for non-proper-noun types.
	if !properNounTypes[entityType] && len(s) > 3 &&
		strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") {
		s = s[:len(s)-1]
	}

	return strings.TrimSpace(s)
}

// DisplayName picks the human-facing name separately from the
// canonical key.
func DisplayName(raw, canonical, entityType string) string {
	cleaned := strings.Join(strings.Fields(strings.TrimSpace(raw)), " ")
	if properNounTypes[entityType] {
		return titleCase(cleaned)
	}
	if len(cleaned) >= 2 {
		return cleaned
	}
	return titleCase(canonical)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = unicode.ToUpper(r[0])
			words[i] = string(r)
		}
	}
	return strings.Join(words, " ")
}

// CanonicalEntity resolves one raw extraction into its node identity.
func CanonicalEntity(rawName, rawType string) (nodeID, nodeType, canonical, display string) {
	nodeType = NormalizeEntityType(rawType)
	canonical = CanonicalizeEntityName(rawName, nodeType)
	display = DisplayName(rawName, canonical, nodeType)
	nodeID = types.EntityNodeID(nodeType, canonical)
	return nodeID, nodeType, canonical, display
}

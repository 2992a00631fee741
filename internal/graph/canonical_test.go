package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"engram/internal/types"
)

func TestCanonicalizeEntityNameStability(t *testing.T) {
	variants := []string{"Dog", "dog", "dogs", "  dog. ", "a dog", "the Dogs!"}
	for _, v := range variants {
		assert.Equal(t, "dog", CanonicalizeEntityName(v, types.NodeTopic), "input %q", v)
	}

	// All variants collapse to the same node id.
	want := types.EntityNodeID(types.NodeTopic, "dog")
	for _, v := range variants {
		id, _, _, _ := CanonicalEntity(v, "Topic")
		assert.Equal(t, want, id, "input %q", v)
	}
}

func TestCanonicalizeProperNounKeepsTrailingS(t *testing.T) {
	// Proper-noun types never singularize.
	assert.Equal(t, "jess", CanonicalizeEntityName("Jess", types.NodePerson))
	assert.Equal(t, "philips", CanonicalizeEntityName("Philips", types.NodeOrg))
	// Non-proper types do.
	assert.Equal(t, "compiler", CanonicalizeEntityName("compilers", types.NodeTechnology))
	// Short words and -ss endings are left alone.
	assert.Equal(t, "gas", CanonicalizeEntityName("gas", types.NodeTopic))
	assert.Equal(t, "class", CanonicalizeEntityName("class", types.NodeTopic))
}

func TestCanonicalizeStripsQuotesAndArticles(t *testing.T) {
	assert.Equal(t, "acme corp", CanonicalizeEntityName(`"Acme Corp"`, types.NodeOrg))
	assert.Equal(t, "acme corp", CanonicalizeEntityName("(Acme Corp)", types.NodeOrg))
	assert.Equal(t, "phoenix", CanonicalizeEntityName("The Phoenix", types.NodeProject))
	assert.Equal(t, "o'brien", CanonicalizeEntityName("O’Brien", types.NodePerson))
	assert.Equal(t, "self-driving car", CanonicalizeEntityName("self-driving cars", types.NodeTopic))
}

func TestNormalizeEntityType(t *testing.T) {
	assert.Equal(t, types.NodeOrg, NormalizeEntityType("Company"))
	assert.Equal(t, types.NodeOrg, NormalizeEntityType("organization"))
	assert.Equal(t, types.NodePlace, NormalizeEntityType("City"))
	assert.Equal(t, types.NodePerson, NormalizeEntityType("Person"))
	assert.Equal(t, types.NodeTechnology, NormalizeEntityType("framework"))
	assert.Equal(t, types.NodeOther, NormalizeEntityType("Widget"))
	assert.Equal(t, types.NodeOther, NormalizeEntityType(""))
}

func TestDisplayName(t *testing.T) {
	// Proper-noun types title-case the original.
	assert.Equal(t, "Alice Smith", DisplayName("alice smith", "alice smith", types.NodePerson))
	// Other types prefer the cleaned original.
	assert.Equal(t, "neural networks", DisplayName("neural networks", "neural network", types.NodeTopic))
	// Too-short originals fall back to title-cased canonical.
	assert.Equal(t, "Dog", DisplayName("d", "dog", types.NodeTopic))
}

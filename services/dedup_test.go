package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollapseFirstSeenWins(t *testing.T) {
	first := mustNormalize(t, sampleRecord("200"))
	second := mustNormalize(t, sampleRecord("201"))
	// Gleicher Autor, abweichende Schreibweise im späteren Record
	second.Authors[0].Author.Surname = "Smyth"

	set := NewDeduplicator(testLogger()).Collapse([]*NormalizedRecord{first, second})

	require.Len(t, set.Authors, 3)
	assert.Equal(t, "Smith", set.Authors[0].Surname)
	assert.Len(t, set.Sources, 1)
	assert.Len(t, set.Affiliations, 2)
	assert.Len(t, set.Keywords, 3)
	assert.Len(t, set.Subjects, 1)
	assert.Len(t, set.Agencies, 1)
}

func TestCollapsePreservesInsertionOrder(t *testing.T) {
	first := mustNormalize(t, sampleRecord("202"))
	second := mustNormalize(t, sampleRecord("203"))
	second.Authors = append(second.Authors, AuthorEntry{
		Author:   firstAuthor("7004", "Neumann"),
		Sequence: 4,
	})

	set := NewDeduplicator(testLogger()).Collapse([]*NormalizedRecord{first, second})

	require.Len(t, set.Authors, 4)
	assert.Equal(t, "7001", set.Authors[0].AUID)
	assert.Equal(t, "7004", set.Authors[3].AUID)
}

func TestCollapseDistinctAgencyKeys(t *testing.T) {
	first := mustNormalize(t, sampleRecord("204"))
	second := mustNormalize(t, sampleRecord("205"))
	second.Funding[0].Agency.ScopusAgencyID = nil
	second.Funding[0].AgencyKey = AgencyKey(second.Funding[0].Agency)

	set := NewDeduplicator(testLogger()).Collapse([]*NormalizedRecord{first, second})

	// ID-Schlüssel und Fallback-Schlüssel sind verschiedene Agenturen
	assert.Len(t, set.Agencies, 2)
}

func TestCollapseEmptyInput(t *testing.T) {
	set := NewDeduplicator(testLogger()).Collapse(nil)
	assert.Empty(t, set.Sources)
	assert.Empty(t, set.Authors)
}

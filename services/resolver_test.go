package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"scopus-loader/models"
)

func resolveSet(t *testing.T, db *gorm.DB, set *DimensionSet) *IDMap {
	t.Helper()
	var ids *IDMap
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		ids, err = NewDimensionResolver(testLogger()).Resolve(tx, set)
		return err
	})
	require.NoError(t, err)
	return ids
}

func TestResolveAssignsAndReturnsIDs(t *testing.T) {
	db := newTestDB(t)
	rec := mustNormalize(t, sampleRecord("300"))
	set := NewDeduplicator(testLogger()).Collapse([]*NormalizedRecord{rec})

	ids := resolveSet(t, db, set)

	assert.Len(t, ids.Sources, 1)
	assert.Len(t, ids.Affiliations, 2)
	assert.Len(t, ids.Authors, 3)
	assert.Len(t, ids.Keywords, 3)
	assert.Len(t, ids.Subjects, 1)
	assert.Len(t, ids.Agencies, 1)
	assert.NotZero(t, ids.Authors["7001"])
}

func TestResolveIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	rec := mustNormalize(t, sampleRecord("301"))
	set := NewDeduplicator(testLogger()).Collapse([]*NormalizedRecord{rec})

	first := resolveSet(t, db, set)
	second := resolveSet(t, db, set)

	assert.Equal(t, first.Authors, second.Authors)
	assert.Equal(t, first.Sources, second.Sources)
	assert.Equal(t, first.Agencies, second.Agencies)

	var authorCount int64
	require.NoError(t, db.Model(&models.Author{}).Count(&authorCount).Error)
	assert.Equal(t, int64(3), authorCount)
}

func TestResolveUpdatesDescriptiveAttributes(t *testing.T) {
	db := newTestDB(t)
	rec := mustNormalize(t, sampleRecord("302"))
	set := NewDeduplicator(testLogger()).Collapse([]*NormalizedRecord{rec})
	first := resolveSet(t, db, set)

	// Späterer Batch mit korrigierter Schreibweise desselben Autors
	later := mustNormalize(t, sampleRecord("303"))
	later.Authors[0].Author.Surname = "Smyth"
	laterSet := NewDeduplicator(testLogger()).Collapse([]*NormalizedRecord{later})
	second := resolveSet(t, db, laterSet)

	assert.Equal(t, first.Authors["7001"], second.Authors["7001"])

	var author models.Author
	require.NoError(t, db.Where("auid = ?", "7001").First(&author).Error)
	assert.Equal(t, "Smyth", author.Surname)
}

func TestResolveAgencyFallbackKey(t *testing.T) {
	db := newTestDB(t)
	noID := models.FundingAgency{
		Name: "National Science Foundation", NameNorm: "national science foundation",
		Country: "United States",
	}
	set := &DimensionSet{Agencies: []models.FundingAgency{noID}}

	first := resolveSet(t, db, set)
	second := resolveSet(t, db, set)

	key := AgencyKey(noID)
	assert.Equal(t, first.Agencies[key], second.Agencies[key])

	var count int64
	require.NoError(t, db.Model(&models.FundingAgency{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveAgencyIDAndFallbackAreSeparate(t *testing.T) {
	db := newTestDB(t)
	id := "501100001659"
	withID := models.FundingAgency{
		ScopusAgencyID: &id, Name: "DFG", NameNorm: "dfg", Country: "Germany",
	}
	noID := models.FundingAgency{Name: "DFG", NameNorm: "dfg", Country: "Germany"}
	set := &DimensionSet{Agencies: []models.FundingAgency{withID, noID}}

	ids := resolveSet(t, db, set)

	require.Len(t, ids.Agencies, 2)
	assert.NotEqual(t, ids.Agencies[AgencyKey(withID)], ids.Agencies[AgencyKey(noID)])
}

func TestWithConflictRetryPassesThroughOtherErrors(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := WithConflictRetry(context.Background(), testLogger(), 5, func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestWithConflictRetryRetriesConflicts(t *testing.T) {
	calls := 0
	err := WithConflictRetry(context.Background(), testLogger(), 3, func() error {
		calls++
		if calls < 3 {
			return errors.New("UNIQUE constraint failed: authors.auid")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithConflictRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithConflictRetry(context.Background(), testLogger(), 2, func() error {
		calls++
		return errors.New("database is locked")
	})
	assert.Equal(t, 2, calls)

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, 2, conflictErr.Attempts)
	assert.ErrorContains(t, conflictErr.Err, "database is locked")
}

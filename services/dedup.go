package services

import (
	"go.uber.org/zap"

	"scopus-loader/models"
)

// DimensionSet enthält je Entitätstyp genau eine Kandidatenzeile pro
// natürlichem Schlüssel, in Erstsichtungs-Reihenfolge.
type DimensionSet struct {
	Sources      []models.Source
	Affiliations []models.Affiliation
	Authors      []models.Author
	Keywords     []models.Keyword
	Subjects     []models.SubjectArea
	Agencies     []models.FundingAgency
}

// Deduplicator kollabiert die Entitäten aller Records eines Batches auf
// eine Kandidatenzeile pro natürlichem Schlüssel.
type Deduplicator struct {
	logger *zap.Logger
}

// NewDeduplicator erstellt einen neuen Deduplicator.
func NewDeduplicator(logger *zap.Logger) *Deduplicator {
	return &Deduplicator{logger: logger}
}

// Collapse ist batch-lokal: bei widersprüchlichen Nicht-Schlüssel-Attributen
// gewinnt der zuerst gesehene Wert in Datei-/Record-Reihenfolge. Duplikate
// über Batchgrenzen hinweg löst erst der konfliktsichere Upsert des
// Resolvers auf.
func (d *Deduplicator) Collapse(records []*NormalizedRecord) *DimensionSet {
	set := &DimensionSet{}

	seenSources := make(map[string]bool)
	seenAffils := make(map[string]bool)
	seenAuthors := make(map[string]bool)
	seenKeywords := make(map[string]bool)
	seenSubjects := make(map[string]bool)
	seenAgencies := make(map[string]bool)

	duplicates := 0
	for _, rec := range records {
		if rec.Source != nil {
			if !seenSources[rec.SourceKey] {
				seenSources[rec.SourceKey] = true
				set.Sources = append(set.Sources, *rec.Source)
			} else {
				duplicates++
			}
		}
		for _, aff := range rec.Affiliations {
			if !seenAffils[aff.ScopusAffiliationID] {
				seenAffils[aff.ScopusAffiliationID] = true
				set.Affiliations = append(set.Affiliations, aff)
			} else {
				duplicates++
			}
		}
		for _, entry := range rec.Authors {
			if !seenAuthors[entry.Author.AUID] {
				seenAuthors[entry.Author.AUID] = true
				set.Authors = append(set.Authors, entry.Author)
			} else {
				duplicates++
			}
		}
		for _, kw := range rec.Keywords {
			if !seenKeywords[kw.Keyword] {
				seenKeywords[kw.Keyword] = true
				set.Keywords = append(set.Keywords, kw)
			} else {
				duplicates++
			}
		}
		for _, sa := range rec.Subjects {
			if !seenSubjects[sa.SubjectCode] {
				seenSubjects[sa.SubjectCode] = true
				set.Subjects = append(set.Subjects, sa)
			} else {
				duplicates++
			}
		}
		for _, f := range rec.Funding {
			if !seenAgencies[f.AgencyKey] {
				seenAgencies[f.AgencyKey] = true
				set.Agencies = append(set.Agencies, f.Agency)
			} else {
				duplicates++
			}
		}
	}

	d.logger.Debug("Dimension sets collapsed",
		zap.Int("records", len(records)),
		zap.Int("sources", len(set.Sources)),
		zap.Int("affiliations", len(set.Affiliations)),
		zap.Int("authors", len(set.Authors)),
		zap.Int("keywords", len(set.Keywords)),
		zap.Int("subjects", len(set.Subjects)),
		zap.Int("agencies", len(set.Agencies)),
		zap.Int("duplicates_collapsed", duplicates))

	return set
}

package services

import (
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scopus-loader/models"
)

// WriteStats zählt, was ein Batch tatsächlich geschrieben hat.
type WriteStats struct {
	Papers       int
	Authorships  int
	Affiliations int
	Keywords     int
	Subjects     int
	Funding      int
	References   int
}

// FactWriter schreibt Papers und deren Relationships in Abhängigkeits-
// Reihenfolge. Setzt voraus, dass der DimensionResolver für den Batch
// bereits gelaufen ist; jeder referenzierte Schlüssel muss im IDMap liegen.
type FactWriter struct {
	logger *zap.Logger
}

// NewFactWriter erstellt einen neuen FactWriter.
func NewFactWriter(logger *zap.Logger) *FactWriter {
	return &FactWriter{logger: logger}
}

// Write persistiert alle Records des Batches. Ein fehlender Schlüssel
// liefert einen ResolutionError und bricht die umschließende Transaktion ab.
func (w *FactWriter) Write(tx *gorm.DB, records []*NormalizedRecord, ids *IDMap) (*WriteStats, error) {
	records = w.dedupPapers(records)
	stats := &WriteStats{}

	paperIDs, err := w.writePapers(tx, records, ids)
	if err != nil {
		return nil, err
	}
	stats.Papers = len(paperIDs)

	authorshipIDs, err := w.writeAuthorships(tx, records, ids, paperIDs, stats)
	if err != nil {
		return nil, err
	}
	if err := w.writeAuthorAffiliations(tx, records, ids, paperIDs, authorshipIDs, stats); err != nil {
		return nil, err
	}
	if err := w.writeKeywords(tx, records, ids, paperIDs, stats); err != nil {
		return nil, err
	}
	if err := w.writeSubjects(tx, records, ids, paperIDs, stats); err != nil {
		return nil, err
	}
	if err := w.writeFunding(tx, records, ids, paperIDs, stats); err != nil {
		return nil, err
	}
	if err := w.writeReferences(tx, records, paperIDs, stats); err != nil {
		return nil, err
	}

	return stats, nil
}

// dedupPapers kollabiert Records mit gleicher Scopus-ID innerhalb des
// Batches. Der zuerst gesehene Record gewinnt; ohne diesen Schritt würde
// ein einzelnes INSERT dieselbe Zeile zweimal treffen.
func (w *FactWriter) dedupPapers(records []*NormalizedRecord) []*NormalizedRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0:0]
	for _, rec := range records {
		if seen[rec.Paper.ScopusID] {
			w.logger.Debug("Collapsing duplicate record in batch",
				zap.String("scopus_id", rec.Paper.ScopusID))
			continue
		}
		seen[rec.Paper.ScopusID] = true
		out = append(out, rec)
	}
	return out
}

func (w *FactWriter) writePapers(tx *gorm.DB, records []*NormalizedRecord, ids *IDMap) (map[string]uint, error) {
	if len(records) == 0 {
		return map[string]uint{}, nil
	}

	papers := make([]models.Paper, 0, len(records))
	for _, rec := range records {
		paper := rec.Paper
		if rec.SourceKey != "" {
			sourceID, ok := ids.Sources[rec.SourceKey]
			if !ok {
				return nil, &ResolutionError{ScopusID: paper.ScopusID, Kind: "source", Key: rec.SourceKey}
			}
			paper.SourceID = &sourceID
		}
		papers = append(papers, paper)
	}

	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scopus_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"eid", "doi", "title", "abstract", "publication_date", "publication_year",
			"source_id", "aggregation_type", "volume", "issue", "page_range",
			"start_page", "end_page", "cited_by_count", "open_access",
			"document_type", "subtype_description", "updated_at",
		}),
	}).CreateInBatches(papers, upsertBatchSize).Error
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(papers))
	for i, p := range papers {
		keys[i] = p.ScopusID
	}
	var persisted []models.Paper
	if err := tx.Select("id", "scopus_id").Where("scopus_id IN ?", keys).Find(&persisted).Error; err != nil {
		return nil, err
	}
	paperIDs := make(map[string]uint, len(persisted))
	for _, p := range persisted {
		paperIDs[p.ScopusID] = p.ID
	}
	return paperIDs, ensureComplete("paper", keys, paperIDs)
}

type authorshipKey struct {
	PaperID  uint
	AuthorID uint
}

// pairKey dient den Seen-Maps der Junction-Writer.
type pairKey struct {
	Left  uint
	Right uint
}

func (w *FactWriter) writeAuthorships(tx *gorm.DB, records []*NormalizedRecord, ids *IDMap, paperIDs map[string]uint, stats *WriteStats) (map[authorshipKey]uint, error) {
	var rows []models.PaperAuthor
	seen := make(map[authorshipKey]bool)
	for _, rec := range records {
		paperID := paperIDs[rec.Paper.ScopusID]
		for _, entry := range rec.Authors {
			authorID, ok := ids.Authors[entry.Author.AUID]
			if !ok {
				return nil, &ResolutionError{ScopusID: rec.Paper.ScopusID, Kind: "author", Key: entry.Author.AUID}
			}
			key := authorshipKey{PaperID: paperID, AuthorID: authorID}
			if seen[key] {
				continue
			}
			seen[key] = true
			rows = append(rows, models.PaperAuthor{
				PaperID:         paperID,
				AuthorID:        authorID,
				AuthorSequence:  entry.Sequence,
				IsCorresponding: entry.IsCorresponding,
			})
		}
	}

	result := make(map[authorshipKey]uint, len(rows))
	if len(rows) == 0 {
		return result, nil
	}

	// Junction-Zeilen sind nach dem ersten Commit unveränderlich,
	// Re-Ingestion ist ein No-op.
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "paper_id"}, {Name: "author_id"}},
		DoNothing: true,
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return nil, err
	}
	stats.Authorships = len(rows)

	paperIDList := make([]uint, 0, len(paperIDs))
	for _, id := range paperIDs {
		paperIDList = append(paperIDList, id)
	}
	var persisted []models.PaperAuthor
	if err := tx.Where("paper_id IN ?", paperIDList).Find(&persisted).Error; err != nil {
		return nil, err
	}
	for _, row := range persisted {
		result[authorshipKey{PaperID: row.PaperID, AuthorID: row.AuthorID}] = row.ID
	}
	return result, nil
}

func (w *FactWriter) writeAuthorAffiliations(tx *gorm.DB, records []*NormalizedRecord, ids *IDMap, paperIDs map[string]uint, authorshipIDs map[authorshipKey]uint, stats *WriteStats) error {
	var rows []models.PaperAuthorAffiliation
	seen := make(map[pairKey]bool)
	for _, rec := range records {
		paperID := paperIDs[rec.Paper.ScopusID]
		for _, entry := range rec.Authors {
			authorID := ids.Authors[entry.Author.AUID]
			paID, ok := authorshipIDs[authorshipKey{PaperID: paperID, AuthorID: authorID}]
			if !ok {
				return &ResolutionError{ScopusID: rec.Paper.ScopusID, Kind: "authorship", Key: entry.Author.AUID}
			}
			for _, affKey := range entry.AffiliationIDs {
				affID, ok := ids.Affiliations[affKey]
				if !ok {
					return &ResolutionError{ScopusID: rec.Paper.ScopusID, Kind: "affiliation", Key: affKey}
				}
				key := pairKey{Left: paID, Right: affID}
				if seen[key] {
					continue
				}
				seen[key] = true
				rows = append(rows, models.PaperAuthorAffiliation{
					PaperAuthorID: paID,
					AffiliationID: affID,
				})
			}
		}
	}
	if len(rows) == 0 {
		return nil
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "paper_author_id"}, {Name: "affiliation_id"}},
		DoNothing: true,
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return err
	}
	stats.Affiliations = len(rows)
	return nil
}

func (w *FactWriter) writeKeywords(tx *gorm.DB, records []*NormalizedRecord, ids *IDMap, paperIDs map[string]uint, stats *WriteStats) error {
	var rows []models.PaperKeyword
	seen := make(map[pairKey]bool)
	for _, rec := range records {
		paperID := paperIDs[rec.Paper.ScopusID]
		for _, kw := range rec.Keywords {
			keywordID, ok := ids.Keywords[kw.Keyword]
			if !ok {
				return &ResolutionError{ScopusID: rec.Paper.ScopusID, Kind: "keyword", Key: kw.Keyword}
			}
			key := pairKey{Left: paperID, Right: keywordID}
			if seen[key] {
				continue
			}
			seen[key] = true
			rows = append(rows, models.PaperKeyword{
				PaperID:     paperID,
				KeywordID:   keywordID,
				KeywordType: kw.KeywordType,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "paper_id"}, {Name: "keyword_id"}},
		DoNothing: true,
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return err
	}
	stats.Keywords = len(rows)
	return nil
}

func (w *FactWriter) writeSubjects(tx *gorm.DB, records []*NormalizedRecord, ids *IDMap, paperIDs map[string]uint, stats *WriteStats) error {
	var rows []models.PaperSubjectArea
	seen := make(map[pairKey]bool)
	for _, rec := range records {
		paperID := paperIDs[rec.Paper.ScopusID]
		for _, sa := range rec.Subjects {
			subjectID, ok := ids.Subjects[sa.SubjectCode]
			if !ok {
				return &ResolutionError{ScopusID: rec.Paper.ScopusID, Kind: "subject area", Key: sa.SubjectCode}
			}
			key := pairKey{Left: paperID, Right: subjectID}
			if seen[key] {
				continue
			}
			seen[key] = true
			rows = append(rows, models.PaperSubjectArea{
				PaperID:       paperID,
				SubjectAreaID: subjectID,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "paper_id"}, {Name: "subject_area_id"}},
		DoNothing: true,
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return err
	}
	stats.Subjects = len(rows)
	return nil
}

func (w *FactWriter) writeFunding(tx *gorm.DB, records []*NormalizedRecord, ids *IDMap, paperIDs map[string]uint, stats *WriteStats) error {
	var rows []models.PaperFunding
	seen := make(map[pairKey]bool)
	for _, rec := range records {
		paperID := paperIDs[rec.Paper.ScopusID]
		for _, entry := range rec.Funding {
			agencyID, ok := ids.Agencies[entry.AgencyKey]
			if !ok {
				return &ResolutionError{ScopusID: rec.Paper.ScopusID, Kind: "funding agency", Key: entry.AgencyKey}
			}
			key := pairKey{Left: paperID, Right: agencyID}
			if seen[key] {
				continue
			}
			seen[key] = true
			rows = append(rows, models.PaperFunding{
				PaperID:     paperID,
				AgencyID:    agencyID,
				GrantID:     strings.Join(entry.GrantIDs, ", "),
				FundingText: entry.FundingText,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "paper_id"}, {Name: "agency_id"}},
		DoNothing: true,
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return err
	}
	stats.Funding = len(rows)
	return nil
}

func (w *FactWriter) writeReferences(tx *gorm.DB, records []*NormalizedRecord, paperIDs map[string]uint, stats *WriteStats) error {
	var rows []models.ReferencePaper
	seen := make(map[pairKey]bool)
	for _, rec := range records {
		paperID := paperIDs[rec.Paper.ScopusID]
		for _, ref := range rec.References {
			key := pairKey{Left: paperID, Right: uint(ref.ReferenceSequence)}
			if seen[key] {
				continue
			}
			seen[key] = true
			ref.PaperID = paperID
			rows = append(rows, ref)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "paper_id"}, {Name: "reference_sequence"}},
		DoNothing: true,
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return err
	}
	stats.References = len(rows)
	return nil
}

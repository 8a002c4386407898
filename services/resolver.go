package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scopus-loader/models"
)

// upsertBatchSize begrenzt die Zeilen pro INSERT-Statement.
const upsertBatchSize = 500

// IDMap bildet natürliche Schlüssel auf Surrogat-IDs ab, für jede Zeile
// des Eingabe-Sets, egal ob neu eingefügt oder bereits vorhanden.
type IDMap struct {
	Sources      map[string]uint
	Affiliations map[string]uint
	Authors      map[string]uint
	Keywords     map[string]uint
	Subjects     map[string]uint
	Agencies     map[string]uint
}

// DimensionResolver führt set-basierte Upserts je Dimensionstabelle aus.
// Konfliktziel ist der natürliche Schlüssel; beschreibende Attribute werden
// überschrieben, die Surrogat-ID bleibt erhalten. Zweimaliges Auflösen
// derselben Schlüssel liefert dieselben IDs und erzeugt keine neuen Zeilen.
type DimensionResolver struct {
	logger *zap.Logger
}

// NewDimensionResolver erstellt einen neuen DimensionResolver.
func NewDimensionResolver(logger *zap.Logger) *DimensionResolver {
	return &DimensionResolver{logger: logger}
}

// Resolve upsertet alle Dimensionslisten des Batches und liefert das
// vollständige Schlüssel→ID-Mapping. Muss vor jedem Fakt-Write des Batches
// abgeschlossen sein.
func (r *DimensionResolver) Resolve(tx *gorm.DB, set *DimensionSet) (*IDMap, error) {
	ids := &IDMap{}
	var err error

	if ids.Sources, err = r.resolveSources(tx, set.Sources); err != nil {
		return nil, fmt.Errorf("resolve sources: %w", err)
	}
	if ids.Affiliations, err = r.resolveAffiliations(tx, set.Affiliations); err != nil {
		return nil, fmt.Errorf("resolve affiliations: %w", err)
	}
	if ids.Authors, err = r.resolveAuthors(tx, set.Authors); err != nil {
		return nil, fmt.Errorf("resolve authors: %w", err)
	}
	if ids.Keywords, err = r.resolveKeywords(tx, set.Keywords); err != nil {
		return nil, fmt.Errorf("resolve keywords: %w", err)
	}
	if ids.Subjects, err = r.resolveSubjects(tx, set.Subjects); err != nil {
		return nil, fmt.Errorf("resolve subject areas: %w", err)
	}
	if ids.Agencies, err = r.resolveAgencies(tx, set.Agencies); err != nil {
		return nil, fmt.Errorf("resolve funding agencies: %w", err)
	}

	return ids, nil
}

func (r *DimensionResolver) resolveSources(tx *gorm.DB, rows []models.Source) (map[string]uint, error) {
	if len(rows) == 0 {
		return map[string]uint{}, nil
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scopus_source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "abbrev", "issn_print", "issn_electronic", "publisher", "source_type",
		}),
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.ScopusSourceID
	}
	var persisted []models.Source
	if err := tx.Where("scopus_source_id IN ?", keys).Find(&persisted).Error; err != nil {
		return nil, err
	}
	ids := make(map[string]uint, len(persisted))
	for _, row := range persisted {
		ids[row.ScopusSourceID] = row.ID
	}
	return ids, ensureComplete("source", keys, ids)
}

func (r *DimensionResolver) resolveAffiliations(tx *gorm.DB, rows []models.Affiliation) (map[string]uint, error) {
	if len(rows) == 0 {
		return map[string]uint{}, nil
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scopus_affiliation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "city", "state", "country", "postal_code",
		}),
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.ScopusAffiliationID
	}
	var persisted []models.Affiliation
	if err := tx.Where("scopus_affiliation_id IN ?", keys).Find(&persisted).Error; err != nil {
		return nil, err
	}
	ids := make(map[string]uint, len(persisted))
	for _, row := range persisted {
		ids[row.ScopusAffiliationID] = row.ID
	}
	return ids, ensureComplete("affiliation", keys, ids)
}

func (r *DimensionResolver) resolveAuthors(tx *gorm.DB, rows []models.Author) (map[string]uint, error) {
	if len(rows) == 0 {
		return map[string]uint{}, nil
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "auid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"surname", "given_name", "initials", "indexed_name",
		}),
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.AUID
	}
	var persisted []models.Author
	if err := tx.Where("auid IN ?", keys).Find(&persisted).Error; err != nil {
		return nil, err
	}
	ids := make(map[string]uint, len(persisted))
	for _, row := range persisted {
		ids[row.AUID] = row.ID
	}
	return ids, ensureComplete("author", keys, ids)
}

func (r *DimensionResolver) resolveKeywords(tx *gorm.DB, rows []models.Keyword) (map[string]uint, error) {
	if len(rows) == 0 {
		return map[string]uint{}, nil
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "keyword"}},
		DoUpdates: clause.AssignmentColumns([]string{"keyword_type"}),
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.Keyword
	}
	var persisted []models.Keyword
	if err := tx.Where("keyword IN ?", keys).Find(&persisted).Error; err != nil {
		return nil, err
	}
	ids := make(map[string]uint, len(persisted))
	for _, row := range persisted {
		ids[row.Keyword] = row.ID
	}
	return ids, ensureComplete("keyword", keys, ids)
}

func (r *DimensionResolver) resolveSubjects(tx *gorm.DB, rows []models.SubjectArea) (map[string]uint, error) {
	if len(rows) == 0 {
		return map[string]uint{}, nil
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "abbrev"}),
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.SubjectCode
	}
	var persisted []models.SubjectArea
	if err := tx.Where("subject_code IN ?", keys).Find(&persisted).Error; err != nil {
		return nil, err
	}
	ids := make(map[string]uint, len(persisted))
	for _, row := range persisted {
		ids[row.SubjectCode] = row.ID
	}
	return ids, ensureComplete("subject area", keys, ids)
}

// resolveAgencies läuft in zwei Durchgängen: Agenturen mit Scopus-ID
// upserten gegen die ID, Agenturen ohne gegen den zusammengesetzten
// Schlüssel (partieller Index auf name_norm+country).
func (r *DimensionResolver) resolveAgencies(tx *gorm.DB, rows []models.FundingAgency) (map[string]uint, error) {
	ids := make(map[string]uint, len(rows))
	if len(rows) == 0 {
		return ids, nil
	}

	var withID, withoutID []models.FundingAgency
	for _, row := range rows {
		if row.ScopusAgencyID != nil && *row.ScopusAgencyID != "" {
			withID = append(withID, row)
		} else {
			withoutID = append(withoutID, row)
		}
	}

	if len(withID) > 0 {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scopus_agency_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "name_norm", "acronym", "country"}),
		}).CreateInBatches(withID, upsertBatchSize).Error
		if err != nil {
			return nil, err
		}
		keys := make([]string, len(withID))
		for i, row := range withID {
			keys[i] = *row.ScopusAgencyID
		}
		var persisted []models.FundingAgency
		if err := tx.Where("scopus_agency_id IN ?", keys).Find(&persisted).Error; err != nil {
			return nil, err
		}
		for _, row := range persisted {
			ids[AgencyKey(row)] = row.ID
		}
	}

	if len(withoutID) > 0 {
		err := tx.Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "name_norm"}, {Name: "country"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "scopus_agency_id IS NULL"}}},
			DoUpdates:   clause.AssignmentColumns([]string{"name", "acronym"}),
		}).CreateInBatches(withoutID, upsertBatchSize).Error
		if err != nil {
			return nil, err
		}
		norms := make([]string, len(withoutID))
		for i, row := range withoutID {
			norms[i] = row.NameNorm
		}
		var persisted []models.FundingAgency
		if err := tx.Where("scopus_agency_id IS NULL AND name_norm IN ?", norms).Find(&persisted).Error; err != nil {
			return nil, err
		}
		for _, row := range persisted {
			ids[AgencyKey(row)] = row.ID
		}
	}

	for _, row := range rows {
		if _, ok := ids[AgencyKey(row)]; !ok {
			return nil, fmt.Errorf("funding agency %q not resolved after upsert", row.Name)
		}
	}
	return ids, nil
}

// ensureComplete stellt sicher, dass jeder Eingabeschlüssel im Mapping
// gelandet ist; ein Loch hier wäre ein Storage-Fehler, kein Datenfehler.
func ensureComplete(kind string, keys []string, ids map[string]uint) error {
	for _, key := range keys {
		if _, ok := ids[key]; !ok {
			return fmt.Errorf("%s %q not resolved after upsert", kind, key)
		}
	}
	return nil
}

// WithConflictRetry führt fn aus und wiederholt bei Contention-Konflikten
// konkurrierender Batches mit exponentiellem Backoff. Nicht-retrybare
// Fehler werden unverändert durchgereicht.
func WithConflictRetry(ctx context.Context, logger *zap.Logger, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	backoff := 100 * time.Millisecond
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !isRetryableConflict(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		logger.Warn("Retryable conflict during dimension upsert, backing off",
			zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
	return &ConflictError{Attempts: attempts, Err: err}
}

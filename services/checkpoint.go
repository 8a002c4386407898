package services

import (
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scopus-loader/models"
)

// CheckpointStore verwaltet die processed_files-Tabelle. Eine Datei gilt
// erst dann als verarbeitet, wenn ihr Batch committed wurde; die Markierung
// läuft deshalb in derselben Transaktion wie die Batch-Writes.
type CheckpointStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCheckpointStore erstellt einen neuen CheckpointStore.
func NewCheckpointStore(db *gorm.DB, logger *zap.Logger) *CheckpointStore {
	return &CheckpointStore{db: db, logger: logger}
}

// FilterPending entfernt bereits verarbeitete Dateien aus der Liste und
// erhält die Eingabereihenfolge.
func (s *CheckpointStore) FilterPending(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	var done []string
	err := s.db.Model(&models.ProcessedFile{}).
		Where("file_path IN ?", paths).
		Pluck("file_path", &done).Error
	if err != nil {
		return nil, err
	}

	doneSet := make(map[string]bool, len(done))
	for _, p := range done {
		doneSet[p] = true
	}

	pending := make([]string, 0, len(paths))
	for _, p := range paths {
		if !doneSet[p] {
			pending = append(pending, p)
		}
	}

	s.logger.Debug("Checkpoint filter applied",
		zap.Int("total", len(paths)),
		zap.Int("already_processed", len(done)),
		zap.Int("pending", len(pending)))

	return pending, nil
}

// MarkProcessed schreibt die Checkpoint-Zeilen des Batches über die
// übergebene Transaktion. DO NOTHING deckt den Fall ab, dass ein
// konkurrierender Lauf dieselbe Datei schon markiert hat.
func (s *CheckpointStore) MarkProcessed(tx *gorm.DB, runID uint, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	rows := make([]models.ProcessedFile, len(paths))
	for i, p := range paths {
		rows[i] = models.ProcessedFile{FilePath: p, RunID: runID}
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_path"}},
		DoNothing: true,
	}).CreateInBatches(rows, upsertBatchSize).Error
}

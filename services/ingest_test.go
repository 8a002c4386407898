package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"scopus-loader/config"
	"scopus-loader/models"
)

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		DataDir:      dataDir,
		BatchSize:    10,
		Concurrency:  1,
		BatchTimeout: time.Minute,
		MaxRetries:   2,
	}
}

// writeExport legt eine minimale Exportdatei mit einem Record ab.
func writeExport(t *testing.T, dir, name, id, citedBy string) {
	t.Helper()
	data := fmt.Sprintf(`{
		"abstracts-retrieval-response": {
			"coredata": {
				"dc:identifier": "SCOPUS_ID:%s",
				"dc:title": "Paper %s",
				"prism:coverDate": "2020-01-01",
				"prism:publicationName": "Journal of Testing",
				"citedby-count": %q
			},
			"authors": {"author": [{"@auid": "9%s", "@seq": "1", "ce:surname": "Autor"}]},
			"item": {"bibrecord": {"head": {"source": {"@srcid": "777", "@type": "j"}}}}
		}
	}`, id, id, citedBy, id)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
}

func newTestIngest(t *testing.T, db *gorm.DB, dir string) *IngestService {
	t.Helper()
	return NewIngestService(testConfig(dir), db, testLogger())
}

func TestRunLoadsAllFiles(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeExport(t, dir, "a.json", "500", "1")
	writeExport(t, dir, "b.json", "501", "2")

	report, err := newTestIngest(t, db, dir).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.FilesTotal)
	assert.Equal(t, 2, report.FilesCommitted)
	assert.Equal(t, 2, report.PapersLoaded)
	assert.Equal(t, 1, report.BatchesCommitted)
	assert.Equal(t, int64(2), countRows(t, db, &models.Paper{}))
	assert.Equal(t, int64(2), countRows(t, db, &models.ProcessedFile{}))

	var run models.IngestRun
	require.NoError(t, db.First(&run, report.RunID).Error)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestRunIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeExport(t, dir, "a.json", "510", "1")

	svc := newTestIngest(t, db, dir)
	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesSkipped)
	assert.Equal(t, 0, report.FilesCommitted)
	assert.Equal(t, 0, report.PapersLoaded)
	assert.Equal(t, int64(1), countRows(t, db, &models.Paper{}))
	assert.Equal(t, int64(1), countRows(t, db, &models.PaperAuthor{}))
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeExport(t, dir, "a.json", "520", "1")

	svc := newTestIngest(t, db, dir)
	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	writeExport(t, dir, "b.json", "521", "1")
	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.FilesTotal)
	assert.Equal(t, 1, report.FilesSkipped)
	assert.Equal(t, 1, report.FilesCommitted)
	assert.Equal(t, int64(2), countRows(t, db, &models.Paper{}))
}

func TestRunSkipsMalformedRecord(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeExport(t, dir, "good.json", "530", "1")
	writeExport(t, dir, "bad.json", "531", "not-a-number")

	report, err := newTestIngest(t, db, dir).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.RecordsSkipped)
	assert.Equal(t, 1, report.RecordsProcessed)
	assert.Equal(t, 1, report.PapersLoaded)
	// Die Datei mit dem fehlerhaften Record ist trotzdem abgehakt
	assert.Equal(t, int64(2), countRows(t, db, &models.ProcessedFile{}))
	require.Len(t, report.SkippedRecords, 1)
	assert.Contains(t, report.SkippedRecords[0].Reason, "citedby-count")

	var run models.IngestRun
	require.NoError(t, db.First(&run, report.RunID).Error)
	assert.Equal(t, 1, run.RecordsSkipped)
	assert.NotEmpty(t, run.SkipDetail)
}

func TestRunSkipsUnreadableFile(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeExport(t, dir, "good.json", "540", "1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	svc := newTestIngest(t, db, dir)
	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesCommitted)
	assert.Equal(t, 1, report.FilesSkipped)
	assert.Equal(t, int64(1), countRows(t, db, &models.Paper{}))
	// Die unlesbare Datei bleibt unmarkiert und wird beim nächsten Lauf erneut versucht
	assert.Equal(t, int64(1), countRows(t, db, &models.ProcessedFile{}))
}

func TestRunIgnoresHiddenAndForeignFiles(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeExport(t, dir, "a.json", "550", "1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	report, err := newTestIngest(t, db, dir).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesTotal)
}

func TestRunBatchIsAtomic(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeExport(t, dir, "a.json", "560", "1")
	writeExport(t, dir, "b.json", "561", "1")

	// Fehlende Tabelle bringt den Batch-Write zum Scheitern
	require.NoError(t, db.Migrator().DropTable(&models.PaperAuthor{}))

	svc := newTestIngest(t, db, dir)
	report, err := svc.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, report.BatchesFailed)
	// Rollback: weder Papers noch Checkpoint-Zeilen des Batches
	assert.Equal(t, int64(0), countRows(t, db, &models.Paper{}))
	assert.Equal(t, int64(0), countRows(t, db, &models.ProcessedFile{}))

	var run models.IngestRun
	require.NoError(t, db.First(&run, report.RunID).Error)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)
}

func TestRunWithSmallBatches(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeExport(t, dir, fmt.Sprintf("f%d.json", i), fmt.Sprintf("57%d", i), "1")
	}

	cfg := testConfig(dir)
	cfg.BatchSize = 2
	svc := NewIngestService(cfg, db, testLogger())

	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.BatchesCommitted)
	assert.Equal(t, 5, report.PapersLoaded)
	// Alle Batches teilen sich dieselbe Quellen-Zeile
	assert.Equal(t, int64(1), countRows(t, db, &models.Source{}))
}

func TestRunConcurrent(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	for i := 0; i < 8; i++ {
		writeExport(t, dir, fmt.Sprintf("f%d.json", i), fmt.Sprintf("60%d", i), "1")
	}

	cfg := testConfig(dir)
	cfg.BatchSize = 1
	cfg.Concurrency = 4
	cfg.MaxRetries = 10
	svc := NewIngestService(cfg, db, testLogger())

	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, report.BatchesCommitted)
	assert.Equal(t, 0, report.BatchesFailed)
	assert.Equal(t, 8, report.FilesCommitted)
	assert.Equal(t, 8, report.PapersLoaded)
	assert.Equal(t, int64(8), countRows(t, db, &models.Paper{}))
	assert.Equal(t, int64(8), countRows(t, db, &models.ProcessedFile{}))
	// Alle Worker teilen sich dieselbe Quellen-Zeile
	assert.Equal(t, int64(1), countRows(t, db, &models.Source{}))
}

func TestRunConcurrentStopsOnFailure(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	for i := 0; i < 8; i++ {
		writeExport(t, dir, fmt.Sprintf("f%d.json", i), fmt.Sprintf("61%d", i), "1")
	}

	// Fehlende Tabelle bringt jeden Batch-Write zum Scheitern
	require.NoError(t, db.Migrator().DropTable(&models.PaperAuthor{}))

	cfg := testConfig(dir)
	cfg.BatchSize = 1
	cfg.Concurrency = 4
	svc := NewIngestService(cfg, db, testLogger())

	report, err := svc.Run(context.Background())
	require.Error(t, err)

	assert.GreaterOrEqual(t, report.BatchesFailed, 1)
	assert.Equal(t, int64(0), countRows(t, db, &models.Paper{}))
	assert.Equal(t, int64(0), countRows(t, db, &models.ProcessedFile{}))

	var run models.IngestRun
	require.NoError(t, db.First(&run, report.RunID).Error)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestRunWithPreUpsert(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeExport(t, dir, "a.json", "580", "1")
	writeExport(t, dir, "b.json", "581", "1")

	cfg := testConfig(dir)
	cfg.PreUpsert = true
	cfg.BatchSize = 1
	svc := NewIngestService(cfg, db, testLogger())

	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.PapersLoaded)
	assert.Equal(t, int64(1), countRows(t, db, &models.Source{}))
	assert.Equal(t, int64(2), countRows(t, db, &models.Author{}))
}

func TestRunCancelledBeforeNextBatch(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeExport(t, dir, "a.json", "590", "1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestIngest(t, db, dir).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, report.BatchesCommitted)
	assert.Equal(t, int64(0), countRows(t, db, &models.Paper{}))
}

func TestChunkFiles(t *testing.T) {
	files := []string{"a", "b", "c", "d", "e"}

	batches := chunkFiles(files, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"e"}, batches[2])

	assert.Len(t, chunkFiles(files, 10), 1)
	assert.Len(t, chunkFiles(nil, 3), 0)
	// Ungültige Größe fällt auf 1 zurück
	assert.Len(t, chunkFiles(files, 0), 5)
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"scopus-loader/config"
	"scopus-loader/models"
	"scopus-loader/scopus"
)

// RunReport fasst einen abgeschlossenen Ingestion-Lauf zusammen.
type RunReport struct {
	RunID uint `json:"run_id"`

	FilesTotal     int `json:"files_total"`
	FilesSkipped   int `json:"files_skipped"`
	FilesCommitted int `json:"files_committed"`

	BatchesCommitted int `json:"batches_committed"`
	BatchesFailed    int `json:"batches_failed"`

	RecordsProcessed int `json:"records_processed"`
	RecordsSkipped   int `json:"records_skipped"`
	PapersLoaded     int `json:"papers_loaded"`

	SkippedRecords []SkippedRecord `json:"skipped_records,omitempty"`
}

// SkippedRecord dokumentiert einen übersprungenen Record für den Lauf-Report.
type SkippedRecord struct {
	File   string `json:"file"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// IngestService steuert den Ingestion-Lauf: Dateien entdecken, gegen den
// Checkpoint filtern, in Batches schneiden und jeden Batch als eigene
// Transaktion verarbeiten. Ein Commit umfasst Dimensionen, Facts und die
// Checkpoint-Zeilen des Batches gemeinsam.
type IngestService struct {
	Config *config.Config
	DB     *gorm.DB
	Logger *zap.Logger

	normalizer  *RecordNormalizer
	dedup       *Deduplicator
	resolver    *DimensionResolver
	writer      *FactWriter
	checkpoints *CheckpointStore
}

// NewIngestService erstellt einen neuen IngestService.
func NewIngestService(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *IngestService {
	return &IngestService{
		Config:      cfg,
		DB:          db,
		Logger:      logger,
		normalizer:  NewRecordNormalizer(logger),
		dedup:       NewDeduplicator(logger),
		resolver:    NewDimensionResolver(logger),
		writer:      NewFactWriter(logger),
		checkpoints: NewCheckpointStore(db, logger),
	}
}

// batchOutcome sind die Kennzahlen eines einzelnen Batches.
type batchOutcome struct {
	FilesCommitted   int
	FilesSkipped     int
	RecordsProcessed int
	RecordsSkipped   int
	PapersLoaded     int
	Skipped          []SkippedRecord
}

// Run führt einen vollständigen Ingestion-Lauf aus und protokolliert ihn in
// der ingest_runs-Tabelle. Abbruch über den Context greift an Batchgrenzen;
// ein laufender Batch wird noch zu Ende committet.
func (s *IngestService) Run(ctx context.Context) (*RunReport, error) {
	run := models.IngestRun{Status: models.RunStatusRunning, StartedAt: time.Now()}
	if err := s.DB.Create(&run).Error; err != nil {
		return nil, fmt.Errorf("create ingest run: %w", err)
	}
	s.Logger.Info("Ingestion run started", zap.Uint("run_id", run.ID))

	report, runErr := s.execute(ctx, run.ID)
	report.RunID = run.ID

	s.finishRun(&run, report, runErr)

	if runErr != nil {
		s.Logger.Error("Ingestion run failed", zap.Uint("run_id", run.ID), zap.Error(runErr))
		return report, runErr
	}
	s.Logger.Info("Ingestion run completed",
		zap.Uint("run_id", run.ID),
		zap.Int("files_committed", report.FilesCommitted),
		zap.Int("papers_loaded", report.PapersLoaded),
		zap.Int("records_skipped", report.RecordsSkipped),
		zap.Int("batches_failed", report.BatchesFailed))
	return report, nil
}

func (s *IngestService) execute(ctx context.Context, runID uint) (*RunReport, error) {
	report := &RunReport{}

	files, err := s.discoverFiles()
	if err != nil {
		return report, fmt.Errorf("discover files: %w", err)
	}
	report.FilesTotal = len(files)

	pending, err := s.checkpoints.FilterPending(files)
	if err != nil {
		return report, fmt.Errorf("filter checkpoint: %w", err)
	}
	report.FilesSkipped = len(files) - len(pending)

	if len(pending) == 0 {
		s.Logger.Info("No pending files, nothing to do")
		return report, nil
	}
	s.Logger.Info("Pending files discovered",
		zap.Int("total", len(files)), zap.Int("pending", len(pending)))

	batches := chunkFiles(pending, s.Config.BatchSize)

	if s.Config.PreUpsert {
		if err := s.preUpsertDimensions(ctx, batches); err != nil {
			return report, fmt.Errorf("pre-upsert dimensions: %w", err)
		}
	}

	if s.Config.Concurrency > 1 {
		return report, s.runConcurrent(ctx, runID, batches, report)
	}
	return report, s.runSequential(ctx, runID, batches, report)
}

func (s *IngestService) runSequential(ctx context.Context, runID uint, batches [][]string, report *RunReport) error {
	for i, files := range batches {
		if err := ctx.Err(); err != nil {
			s.Logger.Warn("Run cancelled, stopping before next batch", zap.Int("batches_done", i))
			return err
		}
		outcome, err := s.processBatch(ctx, runID, files)
		if err != nil {
			report.BatchesFailed++
			s.Logger.Error("Batch failed and was rolled back",
				zap.Int("batch", i), zap.Strings("files", files), zap.Error(err))
			return err
		}
		report.absorb(outcome)
		report.BatchesCommitted++
	}
	return nil
}

// runConcurrent verarbeitet Batches parallel mit begrenzter Worker-Zahl.
// Nach dem ersten Fehler werden keine neuen Batches mehr gestartet; bereits
// laufende Batches dürfen noch committen.
func (s *IngestService) runConcurrent(ctx context.Context, runID uint, batches [][]string, report *RunReport) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	semaphore := make(chan struct{}, s.Config.Concurrency)

	for i, files := range batches {
		mu.Lock()
		stop := firstErr != nil
		mu.Unlock()
		if stop || ctx.Err() != nil {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(batch int, files []string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			var outcome *batchOutcome
			err := WithConflictRetry(ctx, s.Logger, s.Config.MaxRetries, func() error {
				var batchErr error
				outcome, batchErr = s.processBatch(ctx, runID, files)
				return batchErr
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.BatchesFailed++
				if firstErr == nil {
					firstErr = err
				}
				s.Logger.Error("Batch failed and was rolled back",
					zap.Int("batch", batch), zap.Strings("files", files), zap.Error(err))
				return
			}
			report.absorb(outcome)
			report.BatchesCommitted++
		}(i, files)
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// processBatch lädt und normalisiert die Dateien des Batches und schreibt
// das Ergebnis in einer Transaktion. Die Checkpoint-Zeilen committen mit.
func (s *IngestService) processBatch(ctx context.Context, runID uint, files []string) (*batchOutcome, error) {
	outcome := &batchOutcome{}

	var records []*NormalizedRecord
	var committed []string
	for _, file := range files {
		recs, err := s.loadFile(file)
		if err != nil {
			outcome.FilesSkipped++
			outcome.Skipped = append(outcome.Skipped, SkippedRecord{File: file, Reason: err.Error()})
			s.Logger.Warn("Skipping unreadable file", zap.String("file", file), zap.Error(err))
			continue
		}
		for i, rec := range recs {
			normalized, err := s.normalizer.Normalize(rec, file, i)
			if err != nil {
				recErr, ok := err.(*RecordError)
				if !ok {
					return nil, err
				}
				outcome.RecordsSkipped++
				outcome.Skipped = append(outcome.Skipped, SkippedRecord{File: file, Index: i, Reason: recErr.Reason})
				s.Logger.Warn("Skipping malformed record", zap.Error(recErr))
				continue
			}
			records = append(records, normalized)
			outcome.RecordsProcessed++
		}
		committed = append(committed, file)
	}

	if len(records) == 0 && len(committed) == 0 {
		return outcome, nil
	}

	// Ein bereits gestarteter Batch läuft bei Cancellation zu Ende, nur
	// das Batch-Timeout begrenzt ihn noch.
	batchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Config.BatchTimeout)
	defer cancel()

	err := s.DB.WithContext(batchCtx).Transaction(func(tx *gorm.DB) error {
		set := s.dedup.Collapse(records)
		ids, err := s.resolver.Resolve(tx, set)
		if err != nil {
			return err
		}
		stats, err := s.writer.Write(tx, records, ids)
		if err != nil {
			return err
		}
		outcome.PapersLoaded = stats.Papers
		return s.checkpoints.MarkProcessed(tx, runID, committed)
	})
	if err != nil {
		return nil, err
	}
	outcome.FilesCommitted = len(committed)
	return outcome, nil
}

// preUpsertDimensions zieht die Dimensions-Upserts aller Batches vor den
// eigentlichen Lauf. Die Batch-Transaktionen finden danach fast alle
// Schlüssel bereits vor, was Konflikte im Concurrent-Modus minimiert.
func (s *IngestService) preUpsertDimensions(ctx context.Context, batches [][]string) error {
	s.Logger.Info("Pre-upserting dimensions for all pending files")
	for _, files := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		var records []*NormalizedRecord
		for _, file := range files {
			recs, err := s.loadFile(file)
			if err != nil {
				continue // der eigentliche Lauf meldet die Datei
			}
			for i, rec := range recs {
				normalized, err := s.normalizer.Normalize(rec, file, i)
				if err != nil {
					continue
				}
				records = append(records, normalized)
			}
		}
		if len(records) == 0 {
			continue
		}
		set := s.dedup.Collapse(records)
		err := WithConflictRetry(ctx, s.Logger, s.Config.MaxRetries, func() error {
			return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				_, err := s.resolver.Resolve(tx, set)
				return err
			})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// discoverFiles sammelt alle JSON-Exportdateien unter DataDir,
// deterministisch sortiert. Pfade sind relativ zum DataDir, damit der
// Checkpoint ein Verschieben des Verzeichnisses übersteht. Versteckte
// Dateien und Verzeichnisse werden übersprungen.
func (s *IngestService) discoverFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.Config.DataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != s.Config.DataDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			return nil
		}
		rel, err := filepath.Rel(s.Config.DataDir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (s *IngestService) loadFile(rel string) ([]scopus.Record, error) {
	data, err := os.ReadFile(filepath.Join(s.Config.DataDir, rel))
	if err != nil {
		return nil, err
	}
	return scopus.DecodeFile(data)
}

// finishRun schreibt die Kennzahlen des Laufs zurück in die ingest_runs-Zeile.
func (s *IngestService) finishRun(run *models.IngestRun, report *RunReport, runErr error) {
	now := time.Now()
	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = runErr.Error()
	}
	run.FilesTotal = report.FilesTotal
	run.FilesSkipped = report.FilesSkipped
	run.FilesCommitted = report.FilesCommitted
	run.BatchesCommitted = report.BatchesCommitted
	run.BatchesFailed = report.BatchesFailed
	run.RecordsProcessed = report.RecordsProcessed
	run.RecordsSkipped = report.RecordsSkipped
	if len(report.SkippedRecords) > 0 {
		if detail, err := json.Marshal(report.SkippedRecords); err == nil {
			run.SkipDetail = detail
		}
	}
	if err := s.DB.Save(run).Error; err != nil {
		s.Logger.Error("Failed to persist run summary", zap.Uint("run_id", run.ID), zap.Error(err))
	}
}

func (r *RunReport) absorb(o *batchOutcome) {
	r.FilesCommitted += o.FilesCommitted
	r.FilesSkipped += o.FilesSkipped
	r.RecordsProcessed += o.RecordsProcessed
	r.RecordsSkipped += o.RecordsSkipped
	r.PapersLoaded += o.PapersLoaded
	r.SkippedRecords = append(r.SkippedRecords, o.Skipped...)
}

// chunkFiles schneidet die Dateiliste in Batches fester Größe.
func chunkFiles(files []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var batches [][]string
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[start:end])
	}
	return batches
}

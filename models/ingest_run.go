package models

import (
	"time"

	"gorm.io/datatypes"
)

// Status-Werte für IngestRun.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// IngestRun protokolliert einen Ingestion-Lauf mit seinen Kennzahlen.
type IngestRun struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Status       string `json:"status" gorm:"index;default:'running'"`
	ErrorMessage string `json:"error_message,omitempty" gorm:"type:text"`

	FilesTotal     int `json:"files_total"`
	FilesSkipped   int `json:"files_skipped"` // bereits im Checkpoint
	FilesCommitted int `json:"files_committed"`

	BatchesCommitted int `json:"batches_committed"`
	BatchesFailed    int `json:"batches_failed"`

	RecordsProcessed int `json:"records_processed"`
	RecordsSkipped   int `json:"records_skipped"` // fehlerhafte Einzel-Records

	// Detailliste fehlerhafter Records (Datei, Index, Grund) als JSON.
	SkipDetail datatypes.JSON `json:"skip_detail,omitempty" gorm:"type:jsonb"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (IngestRun) TableName() string {
	return "ingest_runs"
}

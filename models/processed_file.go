package models

import "time"

// ProcessedFile ist der Checkpoint: eine Zeile pro vollständig committeter
// Eingabedatei. Die Zeile entsteht in derselben Transaktion wie der Batch,
// der die Datei verarbeitet hat.
type ProcessedFile struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	FilePath string `json:"file_path" gorm:"uniqueIndex;size:1024;not null"`
	RunID    uint   `json:"run_id" gorm:"index"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (ProcessedFile) TableName() string {
	return "processed_files"
}

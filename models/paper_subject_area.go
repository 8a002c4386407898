package models

// PaperSubjectArea verknüpft ein Paper mit einem Fachbereich.
type PaperSubjectArea struct {
	ID uint `json:"id" gorm:"primaryKey"`

	PaperID       uint `json:"paper_id" gorm:"index:idx_paper_subject_areas_unique,unique;not null"`
	SubjectAreaID uint `json:"subject_area_id" gorm:"index:idx_paper_subject_areas_unique,unique;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (PaperSubjectArea) TableName() string {
	return "paper_subject_areas"
}

package models

// SubjectArea repräsentiert einen Scopus-Fachbereichscode (ASJC).
type SubjectArea struct {
	ID uint `json:"id" gorm:"primaryKey"`

	SubjectCode string `json:"subject_code" gorm:"uniqueIndex;not null"`
	Name        string `json:"name,omitempty"`
	Abbrev      string `json:"abbrev,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (SubjectArea) TableName() string {
	return "subject_areas"
}

package models

// Keyword repräsentiert einen Schlagwort-Eintrag (Autor- oder Index-Term).
// Autor- und Index-Keywords teilen sich denselben Schlüsselraum über den Text.
type Keyword struct {
	ID uint `json:"id" gorm:"primaryKey"`

	Keyword     string `json:"keyword" gorm:"uniqueIndex;size:512;not null"`
	KeywordType string `json:"keyword_type,omitempty"` // "author" oder "indexed"
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Keyword) TableName() string {
	return "keywords"
}

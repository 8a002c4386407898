package models

// PaperKeyword verknüpft ein Paper mit einem Keyword.
type PaperKeyword struct {
	ID uint `json:"id" gorm:"primaryKey"`

	PaperID   uint `json:"paper_id" gorm:"index:idx_paper_keywords_unique,unique;not null"`
	KeywordID uint `json:"keyword_id" gorm:"index:idx_paper_keywords_unique,unique;not null"`

	KeywordType string `json:"keyword_type,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (PaperKeyword) TableName() string {
	return "paper_keywords"
}

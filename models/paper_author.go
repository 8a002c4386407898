package models

// PaperAuthor verknüpft ein Paper mit einem Autor. Die Sequenz erhält die
// Autorenreihenfolge aus dem Quell-Record.
type PaperAuthor struct {
	ID uint `json:"id" gorm:"primaryKey"`

	PaperID  uint `json:"paper_id" gorm:"index:idx_paper_authors_unique,unique;not null"`
	AuthorID uint `json:"author_id" gorm:"index:idx_paper_authors_unique,unique;not null"`

	AuthorSequence  int  `json:"author_sequence" gorm:"not null"`
	IsCorresponding bool `json:"is_corresponding"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (PaperAuthor) TableName() string {
	return "paper_authors"
}

// PaperAuthorAffiliation hängt eine Affiliation an eine konkrete
// Autorenschaft (nicht an das Paper): ein Autor kann je Paper mehrere
// Affiliations tragen.
type PaperAuthorAffiliation struct {
	ID uint `json:"id" gorm:"primaryKey"`

	PaperAuthorID uint `json:"paper_author_id" gorm:"index:idx_paper_author_affils_unique,unique;not null"`
	AffiliationID uint `json:"affiliation_id" gorm:"index:idx_paper_author_affils_unique,unique;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (PaperAuthorAffiliation) TableName() string {
	return "paper_author_affiliations"
}

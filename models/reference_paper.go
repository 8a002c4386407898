package models

// ReferencePaper repräsentiert einen Eintrag der geordneten Zitationsliste
// eines Papers. Referenzen werden nicht gegen die Papers-Tabelle aufgelöst.
type ReferencePaper struct {
	ID uint `json:"id" gorm:"primaryKey"`

	PaperID           uint `json:"paper_id" gorm:"index:idx_reference_papers_unique,unique;not null"`
	ReferenceSequence int  `json:"reference_sequence" gorm:"index:idx_reference_papers_unique,unique;not null"`

	RefFulltext string `json:"ref_fulltext,omitempty" gorm:"type:text"`
	CitedYear   string `json:"cited_year,omitempty"`
	CitedVolume string `json:"cited_volume,omitempty"`
	CitedPages  string `json:"cited_pages,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (ReferencePaper) TableName() string {
	return "reference_papers"
}

package models

// Source repräsentiert die Journal-/Konferenz-Dimension eines Papers.
type Source struct {
	ID uint `json:"id" gorm:"primaryKey"`

	ScopusSourceID string `json:"scopus_source_id" gorm:"uniqueIndex;not null"`
	Name           string `json:"name,omitempty"`
	Abbrev         string `json:"abbrev,omitempty"`
	ISSNPrint      string `json:"issn_print,omitempty"`
	ISSNElectronic string `json:"issn_electronic,omitempty"`
	Publisher      string `json:"publisher,omitempty"`
	SourceType     string `json:"source_type,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Source) TableName() string {
	return "sources"
}

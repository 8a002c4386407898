package models

// Author repräsentiert einen Autor in der globalen Autoren-Dimension,
// identifiziert über die Scopus-Author-ID (AUID).
type Author struct {
	ID uint `json:"id" gorm:"primaryKey"`

	AUID        string `json:"auid" gorm:"column:auid;uniqueIndex;not null"`
	Surname     string `json:"surname,omitempty"`
	GivenName   string `json:"given_name,omitempty"`
	Initials    string `json:"initials,omitempty"`
	IndexedName string `json:"indexed_name,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Author) TableName() string {
	return "authors"
}

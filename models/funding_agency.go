package models

// FundingAgency repräsentiert einen Förderer. Natürlicher Schlüssel ist die
// Scopus-Agency-ID; fehlt sie, greift der zusammengesetzte Schlüssel aus
// normalisiertem Namen und Land (partieller Unique-Index).
type FundingAgency struct {
	ID uint `json:"id" gorm:"primaryKey"`

	ScopusAgencyID *string `json:"scopus_agency_id,omitempty" gorm:"uniqueIndex"`
	Name           string  `json:"name"`
	NameNorm       string  `json:"-" gorm:"index:idx_funding_agencies_name_country,unique,where:scopus_agency_id IS NULL"`
	Acronym        string  `json:"acronym,omitempty"`
	Country        string  `json:"country,omitempty" gorm:"index:idx_funding_agencies_name_country,unique"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (FundingAgency) TableName() string {
	return "funding_agencies"
}

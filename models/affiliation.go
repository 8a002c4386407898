package models

// Affiliation repräsentiert eine Institution in der globalen
// Affiliations-Dimension.
type Affiliation struct {
	ID uint `json:"id" gorm:"primaryKey"`

	ScopusAffiliationID string `json:"scopus_affiliation_id" gorm:"uniqueIndex;not null"`
	Name                string `json:"name,omitempty"`
	City                string `json:"city,omitempty"`
	State               string `json:"state,omitempty"`
	Country             string `json:"country,omitempty"`
	PostalCode          string `json:"postal_code,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Affiliation) TableName() string {
	return "affiliations"
}

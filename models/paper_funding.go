package models

// PaperFunding verknüpft ein Paper mit einer Förderagentur. Mehrere
// Grant-IDs einer Agentur werden zu einem Eintrag zusammengefasst.
type PaperFunding struct {
	ID uint `json:"id" gorm:"primaryKey"`

	PaperID  uint `json:"paper_id" gorm:"index:idx_paper_funding_unique,unique;not null"`
	AgencyID uint `json:"agency_id" gorm:"index:idx_paper_funding_unique,unique;not null"`

	GrantID     string `json:"grant_id,omitempty"`
	FundingText string `json:"funding_text,omitempty" gorm:"type:text"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (PaperFunding) TableName() string {
	return "paper_funding"
}

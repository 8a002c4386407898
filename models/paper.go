package models

import (
	"time"
)

// Paper repräsentiert eine wissenschaftliche Publikation und deren Metadaten.
// Die Identität eines Papers ist dauerhaft an die Scopus-ID gebunden.
type Paper struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ScopusID string `json:"scopus_id" gorm:"uniqueIndex;not null"`
	EID      string `json:"eid,omitempty" gorm:"column:eid"`
	DOI      string `json:"doi,omitempty" gorm:"column:doi;index"`

	Title    string `json:"title"`
	Abstract string `json:"abstract,omitempty" gorm:"type:text"`

	PublicationDate *time.Time `json:"publication_date,omitempty"`
	PublicationYear *int       `json:"publication_year,omitempty" gorm:"index"`

	SourceID *uint `json:"source_id,omitempty" gorm:"index"`

	AggregationType string `json:"aggregation_type,omitempty"`
	Volume          string `json:"volume,omitempty"`
	Issue           string `json:"issue,omitempty"`
	PageRange       string `json:"page_range,omitempty"`
	StartPage       string `json:"start_page,omitempty"`
	EndPage         string `json:"end_page,omitempty"`

	CitedByCount       int    `json:"cited_by_count"`
	OpenAccess         bool   `json:"open_access"`
	DocumentType       string `json:"document_type,omitempty" gorm:"index"`
	SubtypeDescription string `json:"subtype_description,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Paper) TableName() string {
	return "papers"
}

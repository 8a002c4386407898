// Package scopus enthält die Typen für das Scopus-Abstract-Export-Format.
// Das Format kodiert einelementige Collections als Objekt statt als Array
// und Textwerte teils als String, teils als {"$": "..."}-Objekt; alle
// betroffenen Felder dekodieren deshalb über tolerante Wrapper-Typen.
package scopus

import (
	"bytes"
	"encoding/json"
)

// FlexList dekodiert sowohl ein JSON-Array als auch ein einzelnes Objekt
// desselben Typs zu einer Slice.
type FlexList[T any] []T

func (l *FlexList[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var single T
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = []T{single}
	return nil
}

// Value dekodiert einen Textwert, der als String oder als {"$": "..."}
// geliefert werden kann.
type Value struct {
	Text string
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		v.Text = ""
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			Dollar string `json:"$"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		v.Text = obj.Dollar
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v.Text = s
	return nil
}

// Record ist ein einzelner Abstract-Retrieval-Record.
type Record struct {
	Coredata     Coredata           `json:"coredata"`
	Affiliations FlexList[RawAffil] `json:"affiliation"`
	Authors      AuthorGroup        `json:"authors"`
	SubjectAreas SubjectAreaGroup   `json:"subject-areas"`
	AuthKeywords AuthKeywordGroup   `json:"authkeywords"`
	IdxTerms     IdxTermGroup       `json:"idxterms"`
	Item         Item               `json:"item"`
}

// Coredata enthält die skalaren Paper-Attribute.
type Coredata struct {
	Identifier         string `json:"dc:identifier"`
	EID                string `json:"eid"`
	DOI                string `json:"prism:doi"`
	Title              string `json:"dc:title"`
	Description        string `json:"dc:description"`
	CoverDate          string `json:"prism:coverDate"`
	PublicationName    string `json:"prism:publicationName"`
	Publisher          string `json:"dc:publisher"`
	AggregationType    string `json:"prism:aggregationType"`
	Volume             string `json:"prism:volume"`
	Issue              string `json:"prism:issueIdentifier"`
	PageRange          string `json:"prism:pageRange"`
	StartingPage       string `json:"prism:startingPage"`
	EndingPage         string `json:"prism:endingPage"`
	CitedByCount       string `json:"citedby-count"`
	OpenAccess         string `json:"openaccess"`
	Subtype            string `json:"subtype"`
	SubtypeDescription string `json:"subtypeDescription"`
}

// RawAffil ist eine Affiliation auf Record-Ebene (mit vollen Attributen).
type RawAffil struct {
	ID         string `json:"@id"`
	Name       string `json:"affilname"`
	City       string `json:"affiliation-city"`
	State      string `json:"state"`
	Country    string `json:"affiliation-country"`
	PostalCode string `json:"postal-code"`
}

// AuthorGroup kapselt die Autorenliste.
type AuthorGroup struct {
	Author FlexList[RawAuthor] `json:"author"`
}

// RawAuthor ist ein Autor mit seinen Affiliations-Referenzen.
type RawAuthor struct {
	AUID          string             `json:"@auid"`
	Seq           string             `json:"@seq"`
	Surname       string             `json:"ce:surname"`
	Initials      string             `json:"ce:initials"`
	IndexedName   string             `json:"ce:indexed-name"`
	PreferredName PreferredName      `json:"preferred-name"`
	Affiliation   FlexList[AffilRef] `json:"affiliation"`
}

// PreferredName enthält die bevorzugte Namensform eines Autors.
type PreferredName struct {
	GivenName string `json:"ce:given-name"`
}

// AffilRef referenziert eine Affiliation nur über ihre ID.
type AffilRef struct {
	ID string `json:"@id"`
}

// SubjectAreaGroup kapselt die Fachbereichsliste.
type SubjectAreaGroup struct {
	SubjectArea FlexList[RawSubjectArea] `json:"subject-area"`
}

// RawSubjectArea ist ein Fachbereichseintrag.
type RawSubjectArea struct {
	Code   string `json:"@code"`
	Name   string `json:"$"`
	Abbrev string `json:"@abbrev"`
}

// AuthKeywordGroup kapselt die Autor-Keywords.
type AuthKeywordGroup struct {
	AuthorKeyword FlexList[Value] `json:"author-keyword"`
}

// IdxTermGroup kapselt die Index-Terme.
type IdxTermGroup struct {
	IdxTerm FlexList[Value] `json:"idxterm"`
}

// Item enthält den Bibrecord- und Funding-Teil des Records.
type Item struct {
	Bibrecord Bibrecord `json:"bibrecord"`
	XocsMeta  XocsMeta  `json:"xocs:meta"`
}

// Bibrecord trägt Quellen-, Korrespondenz- und Referenzdaten.
type Bibrecord struct {
	Head BibrecordHead `json:"head"`
	Tail BibrecordTail `json:"tail"`
}

// BibrecordHead enthält Quelle und Korrespondenz.
type BibrecordHead struct {
	Source         RawSource                `json:"source"`
	Correspondence FlexList[Correspondence] `json:"correspondence"`
}

// RawSource beschreibt Journal bzw. Konferenz des Papers.
type RawSource struct {
	SrcID       string         `json:"@srcid"`
	Type        string         `json:"@type"`
	TitleAbbrev string         `json:"sourcetitle-abbrev"`
	ISSN        FlexList[ISSN] `json:"issn"`
}

// ISSN ist ein ISSN-Eintrag mit Typ (print/electronic).
type ISSN struct {
	Type  string `json:"@type"`
	Value string `json:"$"`
}

// Correspondence nennt die korrespondierende Person eines Papers.
type Correspondence struct {
	Person CorrespondencePerson `json:"person"`
}

// CorrespondencePerson identifiziert die Person über den Indexed-Name.
type CorrespondencePerson struct {
	IndexedName string `json:"ce:indexed-name"`
}

// BibrecordTail enthält die Bibliographie.
type BibrecordTail struct {
	Bibliography Bibliography `json:"bibliography"`
}

// Bibliography ist die geordnete Referenzliste.
type Bibliography struct {
	Reference FlexList[RawReference] `json:"reference"`
}

// RawReference ist ein einzelner Referenzeintrag.
type RawReference struct {
	ID       string  `json:"@id"`
	Fulltext string  `json:"ref-fulltext"`
	RefInfo  RefInfo `json:"ref-info"`
}

// RefInfo enthält die zitierten Detailfelder einer Referenz.
type RefInfo struct {
	PublicationYear RefYear      `json:"ref-publicationyear"`
	VolISsPag       RefVolISsPag `json:"ref-volisspag"`
}

// RefYear ist das Erscheinungsjahr der zitierten Arbeit.
type RefYear struct {
	First string `json:"@first"`
}

// RefVolISsPag bündelt Band- und Seitenangaben der Referenz.
type RefVolISsPag struct {
	VolISs    RefVolISs    `json:"voliss"`
	PageRange RefPageRange `json:"pagerange"`
}

// RefVolISs enthält die Bandangabe.
type RefVolISs struct {
	Volume string `json:"@volume"`
}

// RefPageRange enthält die erste Seite der Referenz.
type RefPageRange struct {
	First string `json:"@first"`
}

// XocsMeta enthält die Funding-Liste.
type XocsMeta struct {
	FundingList FundingList `json:"xocs:funding-list"`
}

// FundingList bündelt Funding-Einträge und den Funding-Freitext.
type FundingList struct {
	Funding     FlexList[RawFunding] `json:"xocs:funding"`
	FundingText FlexList[Value]      `json:"xocs:funding-text"`
}

// RawFunding ist ein einzelner Funding-Eintrag.
type RawFunding struct {
	AgencyID string          `json:"xocs:funding-agency-id"`
	Agency   string          `json:"xocs:funding-agency"`
	Acronym  string          `json:"xocs:funding-agency-acronym"`
	Country  string          `json:"xocs:funding-agency-country"`
	GrantIDs FlexList[Value] `json:"xocs:funding-id"`
}

package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"scopus-loader/models"
	"scopus-loader/scopus"
)

// Publikationsjahre außerhalb dieses Fensters gelten als Datenfehler.
const (
	minPublicationYear = 1900
	maxPublicationYear = 2100
)

// NormalizedRecord ist die flache In-Memory-Darstellung eines Records:
// die skalaren Paper-Attribute plus die referenzierten Entitäten, jeweils
// mit ihrem natürlichen Schlüssel.
type NormalizedRecord struct {
	Paper models.Paper

	// SourceKey ist leer, wenn der Record keine Quelle trägt.
	SourceKey string
	Source    *models.Source

	Affiliations []models.Affiliation
	Authors      []AuthorEntry
	Keywords     []models.Keyword
	Subjects     []models.SubjectArea
	Funding      []FundingEntry
	References   []models.ReferencePaper
}

// AuthorEntry ist eine Autorenschaft in Record-Reihenfolge.
type AuthorEntry struct {
	Author          models.Author
	Sequence        int
	IsCorresponding bool
	AffiliationIDs  []string
}

// FundingEntry ist ein Funding-Eintrag mit aufgelöstem Agentur-Schlüssel.
type FundingEntry struct {
	Agency      models.FundingAgency
	AgencyKey   string
	GrantIDs    []string
	FundingText string
}

// RecordNormalizer überführt rohe Scopus-Records in NormalizedRecords.
// Reiner Transformationsschritt ohne Seiteneffekte.
type RecordNormalizer struct {
	logger *zap.Logger
}

// NewRecordNormalizer erstellt einen neuen RecordNormalizer.
func NewRecordNormalizer(logger *zap.Logger) *RecordNormalizer {
	return &RecordNormalizer{logger: logger}
}

// Normalize verarbeitet einen Record. Fehlerhafte Records liefern einen
// RecordError, der auf Datei und Record-Index zeigt.
func (n *RecordNormalizer) Normalize(rec scopus.Record, file string, index int) (*NormalizedRecord, error) {
	core := rec.Coredata

	scopusID := strings.TrimSpace(core.Identifier)
	if scopusID == "" {
		return nil, &RecordError{File: file, Index: index, Reason: "missing dc:identifier"}
	}

	paper := models.Paper{
		ScopusID:           scopusID,
		EID:                core.EID,
		DOI:                core.DOI,
		Title:              core.Title,
		Abstract:           core.Description,
		AggregationType:    core.AggregationType,
		Volume:             core.Volume,
		Issue:              core.Issue,
		PageRange:          core.PageRange,
		StartPage:          core.StartingPage,
		EndPage:            core.EndingPage,
		OpenAccess:         core.OpenAccess == "2",
		DocumentType:       core.Subtype,
		SubtypeDescription: core.SubtypeDescription,
	}

	if core.CitedByCount != "" {
		count, err := strconv.Atoi(strings.TrimSpace(core.CitedByCount))
		if err != nil {
			return nil, &RecordError{File: file, Index: index, Reason: fmt.Sprintf("non-numeric citedby-count %q", core.CitedByCount)}
		}
		paper.CitedByCount = count
	}

	if core.CoverDate != "" {
		date, err := time.Parse("2006-01-02", core.CoverDate)
		if err != nil {
			return nil, &RecordError{File: file, Index: index, Reason: fmt.Sprintf("unparsable cover date %q", core.CoverDate)}
		}
		year := date.Year()
		if year < minPublicationYear || year > maxPublicationYear {
			return nil, &RecordError{File: file, Index: index, Reason: fmt.Sprintf("publication year %d out of range", year)}
		}
		paper.PublicationDate = &date
		paper.PublicationYear = &year
	}

	out := &NormalizedRecord{Paper: paper}

	n.normalizeSource(rec, out)
	n.normalizeAffiliations(rec, out)
	n.normalizeAuthors(rec, out)
	n.normalizeKeywords(rec, out)
	n.normalizeSubjects(rec, out)
	n.normalizeFunding(rec, out)
	n.normalizeReferences(rec, out)

	return out, nil
}

func (n *RecordNormalizer) normalizeSource(rec scopus.Record, out *NormalizedRecord) {
	src := rec.Item.Bibrecord.Head.Source
	if src.SrcID == "" {
		return
	}
	source := models.Source{
		ScopusSourceID: src.SrcID,
		Name:           rec.Coredata.PublicationName,
		Abbrev:         src.TitleAbbrev,
		Publisher:      rec.Coredata.Publisher,
		SourceType:     src.Type,
	}
	for _, issn := range src.ISSN {
		switch issn.Type {
		case "print":
			source.ISSNPrint = issn.Value
		case "electronic":
			source.ISSNElectronic = issn.Value
		}
	}
	out.SourceKey = src.SrcID
	out.Source = &source
}

func (n *RecordNormalizer) normalizeAffiliations(rec scopus.Record, out *NormalizedRecord) {
	for _, aff := range rec.Affiliations {
		if aff.ID == "" {
			continue
		}
		out.Affiliations = append(out.Affiliations, models.Affiliation{
			ScopusAffiliationID: aff.ID,
			Name:                aff.Name,
			City:                aff.City,
			State:               aff.State,
			Country:             aff.Country,
			PostalCode:          aff.PostalCode,
		})
	}
}

func (n *RecordNormalizer) normalizeAuthors(rec scopus.Record, out *NormalizedRecord) {
	corresponding := make(map[string]bool)
	for _, corr := range rec.Item.Bibrecord.Head.Correspondence {
		if name := strings.TrimSpace(corr.Person.IndexedName); name != "" {
			corresponding[name] = true
		}
	}

	for i, raw := range rec.Authors.Author {
		if raw.AUID == "" {
			n.logger.Debug("Skipping author without AUID",
				zap.String("scopus_id", out.Paper.ScopusID), zap.Int("position", i+1))
			continue
		}
		seq := i + 1
		if parsed, err := strconv.Atoi(raw.Seq); err == nil && parsed > 0 {
			seq = parsed
		}
		entry := AuthorEntry{
			Author: models.Author{
				AUID:        raw.AUID,
				Surname:     raw.Surname,
				GivenName:   raw.PreferredName.GivenName,
				Initials:    raw.Initials,
				IndexedName: raw.IndexedName,
			},
			Sequence:        seq,
			IsCorresponding: corresponding[strings.TrimSpace(raw.IndexedName)],
		}
		for _, ref := range raw.Affiliation {
			if ref.ID != "" {
				entry.AffiliationIDs = append(entry.AffiliationIDs, ref.ID)
			}
		}
		out.Authors = append(out.Authors, entry)
	}
}

func (n *RecordNormalizer) normalizeKeywords(rec scopus.Record, out *NormalizedRecord) {
	seen := make(map[string]bool)
	for _, kw := range rec.AuthKeywords.AuthorKeyword {
		text := strings.TrimSpace(kw.Text)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out.Keywords = append(out.Keywords, models.Keyword{Keyword: text, KeywordType: "author"})
	}
	for _, term := range rec.IdxTerms.IdxTerm {
		text := strings.TrimSpace(term.Text)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out.Keywords = append(out.Keywords, models.Keyword{Keyword: text, KeywordType: "indexed"})
	}
}

func (n *RecordNormalizer) normalizeSubjects(rec scopus.Record, out *NormalizedRecord) {
	for _, sa := range rec.SubjectAreas.SubjectArea {
		if sa.Code == "" {
			continue
		}
		out.Subjects = append(out.Subjects, models.SubjectArea{
			SubjectCode: sa.Code,
			Name:        sa.Name,
			Abbrev:      sa.Abbrev,
		})
	}
}

func (n *RecordNormalizer) normalizeFunding(rec scopus.Record, out *NormalizedRecord) {
	list := rec.Item.XocsMeta.FundingList

	var fundingText string
	for _, t := range list.FundingText {
		if text := strings.TrimSpace(t.Text); text != "" {
			fundingText = text
			break
		}
	}

	for _, raw := range list.Funding {
		name := strings.TrimSpace(raw.Agency)
		if raw.AgencyID == "" && name == "" {
			continue
		}
		if name == "" {
			// Platzhaltername wie im Altbestand, damit die Zeile lesbar bleibt.
			name = "scopus_agency_" + raw.AgencyID
		}
		agency := models.FundingAgency{
			Name:     name,
			NameNorm: NormalizeAgencyName(name),
			Acronym:  raw.Acronym,
			Country:  strings.TrimSpace(raw.Country),
		}
		if raw.AgencyID != "" {
			id := raw.AgencyID
			agency.ScopusAgencyID = &id
		}
		entry := FundingEntry{
			Agency:      agency,
			AgencyKey:   AgencyKey(agency),
			FundingText: fundingText,
		}
		for _, g := range raw.GrantIDs {
			if grant := strings.TrimSpace(g.Text); grant != "" {
				entry.GrantIDs = append(entry.GrantIDs, grant)
			}
		}
		out.Funding = append(out.Funding, entry)
	}
}

func (n *RecordNormalizer) normalizeReferences(rec scopus.Record, out *NormalizedRecord) {
	for i, ref := range rec.Item.Bibrecord.Tail.Bibliography.Reference {
		seq := i + 1
		if parsed, err := strconv.Atoi(ref.ID); err == nil && parsed > 0 {
			seq = parsed
		}
		out.References = append(out.References, models.ReferencePaper{
			ReferenceSequence: seq,
			RefFulltext:       ref.Fulltext,
			CitedYear:         ref.RefInfo.PublicationYear.First,
			CitedVolume:       ref.RefInfo.VolISsPag.VolISs.Volume,
			CitedPages:        ref.RefInfo.VolISsPag.PageRange.First,
		})
	}
}

// NormalizeAgencyName normalisiert einen Agenturnamen für den
// Schlüsselvergleich: trimmen, Binnen-Whitespace kollabieren, case-folden.
// Die gespeicherten Attribute behalten die Originalschreibweise.
func NormalizeAgencyName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// AgencyKey bildet den natürlichen Schlüssel einer Agentur: Scopus-ID,
// sonst zusammengesetzt aus normalisiertem Namen und Land.
func AgencyKey(a models.FundingAgency) string {
	if a.ScopusAgencyID != nil && *a.ScopusAgencyID != "" {
		return "id:" + *a.ScopusAgencyID
	}
	return "name:" + a.NameNorm + "|" + strings.ToLower(a.Country)
}

package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"scopus-loader/models"
	"scopus-loader/scopus"
)

// newTestDB öffnet eine frische SQLite-Datenbank mit dem vollen Schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Source{}, &models.Author{}, &models.Affiliation{},
		&models.Keyword{}, &models.SubjectArea{}, &models.FundingAgency{},
		&models.Paper{}, &models.PaperAuthor{}, &models.PaperAuthorAffiliation{},
		&models.PaperKeyword{}, &models.PaperSubjectArea{}, &models.PaperFunding{},
		&models.ReferencePaper{}, &models.ProcessedFile{}, &models.IngestRun{},
	))
	return db
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// sampleRecord baut einen vollständigen Record mit drei Autoren, zwei
// Affiliations, Quelle, Keywords, Fachbereich, Funding und Referenzen.
func sampleRecord(scopusID string) scopus.Record {
	var rec scopus.Record
	rec.Coredata = scopus.Coredata{
		Identifier:      "SCOPUS_ID:" + scopusID,
		EID:             "2-s2.0-" + scopusID,
		DOI:             "10.1000/" + scopusID,
		Title:           "Testpaper " + scopusID,
		CoverDate:       "2021-06-15",
		PublicationName: "Journal of Testing",
		CitedByCount:    "7",
		OpenAccess:      "2",
		Subtype:         "ar",
	}
	rec.Item.Bibrecord.Head.Source = scopus.RawSource{
		SrcID:       "21100",
		Type:        "j",
		TitleAbbrev: "J. Test.",
		ISSN: []scopus.ISSN{
			{Type: "print", Value: "1111-2222"},
			{Type: "electronic", Value: "3333-4444"},
		},
	}
	rec.Affiliations = []scopus.RawAffil{
		{ID: "60001", Name: "MIT", City: "Cambridge", Country: "United States"},
		{ID: "60002", Name: "ETH Zurich", City: "Zurich", Country: "Switzerland"},
	}
	rec.Authors.Author = []scopus.RawAuthor{
		{AUID: "7001", Seq: "1", Surname: "Smith", IndexedName: "Smith J.",
			Affiliation: []scopus.AffilRef{{ID: "60001"}}},
		{AUID: "7002", Seq: "2", Surname: "Meier", IndexedName: "Meier A.",
			Affiliation: []scopus.AffilRef{{ID: "60001"}, {ID: "60002"}}},
		{AUID: "7003", Seq: "3", Surname: "Tanaka", IndexedName: "Tanaka K.",
			Affiliation: []scopus.AffilRef{{ID: "60002"}}},
	}
	rec.Item.Bibrecord.Head.Correspondence = []scopus.Correspondence{
		{Person: scopus.CorrespondencePerson{IndexedName: "Meier A."}},
	}
	rec.AuthKeywords.AuthorKeyword = []scopus.Value{{Text: "testing"}, {Text: "go"}}
	rec.IdxTerms.IdxTerm = []scopus.Value{{Text: "Software Quality"}}
	rec.SubjectAreas.SubjectArea = []scopus.RawSubjectArea{
		{Code: "1700", Name: "Computer Science", Abbrev: "COMP"},
	}
	rec.Item.XocsMeta.FundingList = scopus.FundingList{
		Funding: []scopus.RawFunding{
			{AgencyID: "501100001659", Agency: "Deutsche Forschungsgemeinschaft",
				Acronym: "DFG", Country: "Germany",
				GrantIDs: []scopus.Value{{Text: "SFB-1234"}}},
		},
		FundingText: []scopus.Value{{Text: "Funded by the DFG."}},
	}
	rec.Item.Bibrecord.Tail.Bibliography.Reference = []scopus.RawReference{
		{ID: "1", Fulltext: "First cited work"},
		{ID: "2", Fulltext: "Second cited work"},
	}
	return rec
}

func firstAuthor(auid, surname string) models.Author {
	return models.Author{AUID: auid, Surname: surname}
}

func mustNormalize(t *testing.T, rec scopus.Record) *NormalizedRecord {
	t.Helper()
	normalized, err := NewRecordNormalizer(testLogger()).Normalize(rec, "test.json", 0)
	require.NoError(t, err)
	return normalized
}

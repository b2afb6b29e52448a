// Package dataset defines the rows written by the importers. Each row type
// reports a stable identity through RecordID for diagnostics.
package dataset

import (
	"encoding/json"
	"fmt"
	"time"
)

// Surah is one chapter of the Quran, keyed by Number.
type Surah struct {
	Number         int
	Name           string
	NameLatin      string
	NumberOfVerses int
	Place          string
	Meaning        string
	Description    string
	AudioFull      json.RawMessage
}

// RecordID implements batch.Identifier.
func (s Surah) RecordID() string { return fmt.Sprintf("surah:%d", s.Number) }

// Verse is one verse, keyed by (SurahID, VerseNumber).
type Verse struct {
	SurahID     int64
	SurahNumber int
	VerseNumber int
	ArabicText  string
	LatinText   string
	Translation string
	Audio       json.RawMessage
}

// RecordID implements batch.Identifier.
func (v Verse) RecordID() string { return fmt.Sprintf("verse:%d:%d", v.SurahNumber, v.VerseNumber) }

// HadithBook is a hadith collection, keyed by ID.
type HadithBook struct {
	ID           string
	Name         string
	TotalHadiths int
}

// RecordID implements batch.Identifier.
func (b HadithBook) RecordID() string { return "hadith_book:" + b.ID }

// Hadith is one narration, keyed by (BookID, Number).
type Hadith struct {
	BookID      string
	Number      int
	Arabic      string
	Translation string
}

// RecordID implements batch.Identifier.
func (h Hadith) RecordID() string { return fmt.Sprintf("hadith:%s:%d", h.BookID, h.Number) }

// OJKIllegal is an entity on the regulator's illegal investment list.
type OJKIllegal struct {
	ID           int64
	Name         string
	Alias        json.RawMessage
	Address      json.RawMessage
	Web          json.RawMessage
	Email        json.RawMessage
	Phone        json.RawMessage
	EntityType   string
	ActivityType json.RawMessage
	InputDate    *time.Time
	Description  *string
}

// RecordID implements batch.Identifier.
func (o OJKIllegal) RecordID() string { return fmt.Sprintf("ojk_illegal:%d", o.ID) }

// OJKApp is a registered lending application.
type OJKApp struct {
	ID    int64
	Name  string
	URL   *string
	Owner string
}

// RecordID implements batch.Identifier.
func (o OJKApp) RecordID() string { return fmt.Sprintf("ojk_app:%d", o.ID) }

// OJKProduct is a registered investment product.
type OJKProduct struct {
	ID         int64
	Name       string
	Management string
	Custodian  string
	Type       string
}

// RecordID implements batch.Identifier.
func (o OJKProduct) RecordID() string { return fmt.Sprintf("ojk_product:%d", o.ID) }

// BankCountry is keyed by its ISO code.
type BankCountry struct {
	Code string
	Name string
}

// RecordID implements batch.Identifier.
func (c BankCountry) RecordID() string { return "bank_country:" + c.Code }

// BankCity is unique per (CountryCode, Name).
type BankCity struct {
	CountryCode string
	Name        string
}

// RecordID implements batch.Identifier.
func (c BankCity) RecordID() string { return "bank_city:" + c.CountryCode + ":" + c.Name }

// CityKey identifies a city for id lookups.
type CityKey struct {
	CountryCode string
	Name        string
}

// Bank is one SWIFT directory entry, keyed by SwiftCode.
type Bank struct {
	CityID    int64
	Name      string
	Branch    *string
	SwiftCode string
}

// RecordID implements batch.Identifier.
func (b Bank) RecordID() string { return "bank:" + b.SwiftCode }

// AsmaulHusna is one of the names, keyed by Number. Meaning and Description
// are keyed by language code.
type AsmaulHusna struct {
	Number      int
	Arabic      string
	Latine      string
	Meaning     map[string]*string
	Description map[string]*string
	Found       *string
}

// RecordID implements batch.Identifier.
func (a AsmaulHusna) RecordID() string { return fmt.Sprintf("asmaul_husna:%d", a.Number) }

// VerseRef addresses a verse by surah and verse number.
type VerseRef struct {
	Surah int
	Verse int
}

// String renders the reference as "s:v".
func (r VerseRef) String() string { return fmt.Sprintf("%d:%d", r.Surah, r.Verse) }

package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/config"
	"github.com/JakeFAU/dataset-importer/internal/dataset"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

type swiftPayload struct {
	SwiftGlobal *struct {
		Countries []rawSwiftCountry `json:"countries"`
	} `json:"swift_global"`
}

type rawSwiftCountry struct {
	Country     flexString     `json:"country"`
	CountryCode flexString     `json:"country_code"`
	List        []rawSwiftBank `json:"list"`
}

type rawSwiftBank struct {
	Bank      flexString `json:"bank"`
	City      flexString `json:"city"`
	Branch    flexString `json:"branch"`
	SwiftCode flexString `json:"swift_code"`
}

// pendingBank is a bank whose city id is not known yet.
type pendingBank struct {
	city dataset.CityKey
	bank dataset.Bank
}

// SwiftGlobal imports the SWIFT bank directory: countries, then cities, then
// banks linked to their city.
type SwiftGlobal struct {
	*base
	url    string
	sha256 string
}

// NewSwiftGlobal builds the swift_global importer.
func NewSwiftGlobal(src config.SourceConfig, deps Deps) (*SwiftGlobal, error) {
	b, err := newBase(config.SourceSwiftGlobal, deps)
	if err != nil {
		return nil, err
	}
	if src.URL == "" {
		return nil, fmt.Errorf("%s importer: url is required", config.SourceSwiftGlobal)
	}
	return &SwiftGlobal{base: b, url: src.URL, sha256: src.SHA256}, nil
}

// Import upserts countries and cities, resolves city ids and upserts banks.
func (s *SwiftGlobal) Import(ctx context.Context) (batch.Result, error) {
	var res batch.Result
	artifact, err := s.fetch(ctx, s.url, s.sha256)
	if err != nil {
		return res, s.fail(err)
	}
	defer artifact.Remove() //nolint:errcheck // best-effort cleanup

	s.transition(Parsing, nil)
	var payload swiftPayload
	if err := s.decode(artifact, &payload); err != nil {
		return res, s.fail(err)
	}
	if payload.SwiftGlobal == nil || payload.SwiftGlobal.Countries == nil {
		return res, s.fail(&MalformedPayloadError{Source: s.source, Key: "swift_global.countries"})
	}
	raw := payload.SwiftGlobal.Countries
	s.logger.Info("found countries with SWIFT codes", zap.Int("countries", len(raw)))

	s.transition(Transforming, nil)
	countries, cities, pending, rejected, merged := s.transform(raw)
	res.Rejected += rejected
	res.Merged += merged

	part, err := process(ctx, s.base, "swift_global.countries", countries, s.deps.Repo.UpsertBankCountries)
	res.Add(part)
	if err != nil {
		return res, s.fail(err)
	}
	part, err = process(ctx, s.base, "swift_global.cities", cities, s.deps.Repo.UpsertBankCities)
	res.Add(part)
	if err != nil {
		return res, s.fail(err)
	}

	cityIDs, err := s.cityIDs(ctx, countries)
	if err != nil {
		return res, s.fail(err)
	}
	banks := make([]dataset.Bank, 0, len(pending))
	for _, p := range pending {
		id, ok := cityIDs[p.city]
		if !ok {
			s.reject("bank", p.bank.RecordID(), "resolvable city "+p.city.Name)
			res.Rejected++
			continue
		}
		p.bank.CityID = id
		banks = append(banks, p.bank)
	}
	s.logger.Info("total swift code banks", zap.Int("banks", len(banks)))

	part, err = process(ctx, s.base, "swift_global.banks", banks, s.deps.Repo.UpsertBanks)
	res.Add(part)
	if err != nil {
		return res, s.fail(err)
	}

	s.transition(Completed, nil)
	s.logger.Info("swift_global import completed", zap.Object("result", res))
	return res, nil
}

func (s *SwiftGlobal) transform(raw []rawSwiftCountry) ([]dataset.BankCountry, []dataset.BankCity, []pendingBank, int, int) {
	rejected := 0
	countries := make([]dataset.BankCountry, 0, len(raw))
	var cities []dataset.BankCity
	var pending []pendingBank
	for _, rc := range raw {
		code := strings.TrimSpace(rc.CountryCode.Value)
		if code == "" {
			s.reject("country", describe(rawSwiftCountry{Country: rc.Country}), "country_code")
			rejected += 1 + len(rc.List)
			continue
		}
		countries = append(countries, dataset.BankCountry{Code: code, Name: rc.Country.Value})
		for _, rb := range rc.List {
			city := strings.TrimSpace(rb.City.Value)
			swift := strings.TrimSpace(rb.SwiftCode.Value)
			var missing []string
			if swift == "" {
				missing = append(missing, "swift_code")
			}
			if city == "" {
				missing = append(missing, "city")
			}
			if len(missing) > 0 {
				s.reject("bank", describe(rb), missing...)
				rejected++
				continue
			}
			cities = append(cities, dataset.BankCity{CountryCode: code, Name: city})
			pending = append(pending, pendingBank{
				city: dataset.CityKey{CountryCode: code, Name: city},
				bank: dataset.Bank{Name: rb.Bank.Value, Branch: rb.Branch.Ptr(), SwiftCode: swift},
			})
		}
	}

	countries, mergedCountries := collapse(s.base, "country", countries, func(c dataset.BankCountry) string { return c.Code })
	sort.SliceStable(countries, func(i, j int) bool { return countries[i].Code < countries[j].Code })
	// Cities are derived from bank rows, so sharing one is not a duplicate.
	cities, _ = dedupe(cities, func(c dataset.BankCity) dataset.CityKey {
		return dataset.CityKey{CountryCode: c.CountryCode, Name: c.Name}
	})
	sort.SliceStable(cities, func(i, j int) bool { return cities[i].Name < cities[j].Name })
	pending, mergedBanks := collapse(s.base, "bank", pending, func(p pendingBank) string { return p.bank.SwiftCode })
	return countries, cities, pending, rejected, mergedCountries + mergedBanks
}

func (s *SwiftGlobal) cityIDs(ctx context.Context, countries []dataset.BankCountry) (map[dataset.CityKey]int64, error) {
	codes := make([]string, len(countries))
	for i, c := range countries {
		codes[i] = c.Code
	}
	var ids map[dataset.CityKey]int64
	err := s.writeOne(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ids, err = s.deps.Repo.CityIDs(ctx, tx, codes)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve bank cities: %w", err)
	}
	return ids, nil
}

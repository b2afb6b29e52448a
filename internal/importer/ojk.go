package importer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/batch"
	"github.com/JakeFAU/dataset-importer/internal/config"
	"github.com/JakeFAU/dataset-importer/internal/dataset"
)

type ojkPayload struct {
	OJK *ojkSections `json:"ojk"`
}

type ojkSections struct {
	Illegals []rawOJKIllegal `json:"illegals"`
	Apps     []rawOJKApp     `json:"apps"`
	Products []rawOJKProduct `json:"products"`
}

type rawOJKIllegal struct {
	ID           flexInt         `json:"id"`
	Name         flexString      `json:"name"`
	Alias        json.RawMessage `json:"alias"`
	Address      json.RawMessage `json:"address"`
	Web          json.RawMessage `json:"web"`
	Email        json.RawMessage `json:"email"`
	Phone        json.RawMessage `json:"phone"`
	EntityType   flexString      `json:"entity_type"`
	ActivityType json.RawMessage `json:"activity_type"`
	InputDate    flexString      `json:"input_date"`
	Description  flexString      `json:"description"`
}

type rawOJKApp struct {
	ID    flexInt    `json:"id"`
	Name  flexString `json:"name"`
	URL   flexString `json:"url"`
	Owner flexString `json:"owner"`
}

type rawOJKProduct struct {
	ID         flexInt    `json:"id"`
	Name       flexString `json:"name"`
	Management flexString `json:"management"`
	Custodian  flexString `json:"custodian"`
	Type       flexString `json:"type"`
}

// OJK imports the regulator's illegal entity list, registered apps and
// registered products.
type OJK struct {
	*base
	url    string
	sha256 string
}

// NewOJK builds the ojk importer.
func NewOJK(src config.SourceConfig, deps Deps) (*OJK, error) {
	b, err := newBase(config.SourceOJK, deps)
	if err != nil {
		return nil, err
	}
	if src.URL == "" {
		return nil, fmt.Errorf("%s importer: url is required", config.SourceOJK)
	}
	return &OJK{base: b, url: src.URL, sha256: src.SHA256}, nil
}

// Import processes the illegals, apps and products sections in that order.
func (o *OJK) Import(ctx context.Context) (batch.Result, error) {
	var res batch.Result
	artifact, err := o.fetch(ctx, o.url, o.sha256)
	if err != nil {
		return res, o.fail(err)
	}
	defer artifact.Remove() //nolint:errcheck // best-effort cleanup

	o.transition(Parsing, nil)
	var payload ojkPayload
	if err := o.decode(artifact, &payload); err != nil {
		return res, o.fail(err)
	}
	if payload.OJK == nil {
		return res, o.fail(&MalformedPayloadError{Source: o.source, Key: "ojk"})
	}
	sections := payload.OJK

	o.transition(Transforming, nil)
	illegals, rejected := o.illegals(sections.Illegals)
	res.Rejected += rejected
	apps, rejected := o.apps(sections.Apps)
	res.Rejected += rejected
	products, rejected := o.products(sections.Products)
	res.Rejected += rejected

	var merged int
	illegals, merged = collapse(o.base, "illegal", illegals, func(x dataset.OJKIllegal) int64 { return x.ID })
	res.Merged += merged
	apps, merged = collapse(o.base, "app", apps, func(x dataset.OJKApp) int64 { return x.ID })
	res.Merged += merged
	products, merged = collapse(o.base, "product", products, func(x dataset.OJKProduct) int64 { return x.ID })
	res.Merged += merged
	o.logger.Info("ojk sections parsed",
		zap.Int("illegals", len(illegals)),
		zap.Int("apps", len(apps)),
		zap.Int("products", len(products)),
	)

	part, err := process(ctx, o.base, "ojk.illegals", illegals, o.deps.Repo.UpsertOJKIllegals)
	res.Add(part)
	if err != nil {
		return res, o.fail(err)
	}
	part, err = process(ctx, o.base, "ojk.apps", apps, o.deps.Repo.UpsertOJKApps)
	res.Add(part)
	if err != nil {
		return res, o.fail(err)
	}
	part, err = process(ctx, o.base, "ojk.products", products, o.deps.Repo.UpsertOJKProducts)
	res.Add(part)
	if err != nil {
		return res, o.fail(err)
	}

	o.transition(Completed, nil)
	o.logger.Info("ojk import completed", zap.Object("result", res))
	return res, nil
}

func (o *OJK) illegals(raw []rawOJKIllegal) ([]dataset.OJKIllegal, int) {
	rejected := 0
	out := make([]dataset.OJKIllegal, 0, len(raw))
	for _, r := range raw {
		if !r.ID.Present() {
			o.reject("illegal", describe(r), "id")
			rejected++
			continue
		}
		out = append(out, dataset.OJKIllegal{
			ID:           r.ID.Value,
			Name:         r.Name.Value,
			Alias:        jsonList(r.Alias),
			Address:      jsonList(r.Address),
			Web:          jsonList(r.Web),
			Email:        jsonList(r.Email),
			Phone:        jsonList(r.Phone),
			EntityType:   r.EntityType.Value,
			ActivityType: jsonList(r.ActivityType),
			InputDate:    parseDMY(r.InputDate.Value),
			Description:  r.Description.Ptr(),
		})
	}
	return out, rejected
}

func (o *OJK) apps(raw []rawOJKApp) ([]dataset.OJKApp, int) {
	rejected := 0
	out := make([]dataset.OJKApp, 0, len(raw))
	for _, r := range raw {
		if !r.ID.Present() {
			o.reject("app", describe(r), "id")
			rejected++
			continue
		}
		out = append(out, dataset.OJKApp{
			ID:    r.ID.Value,
			Name:  r.Name.Value,
			URL:   r.URL.Ptr(),
			Owner: r.Owner.Value,
		})
	}
	return out, rejected
}

func (o *OJK) products(raw []rawOJKProduct) ([]dataset.OJKProduct, int) {
	rejected := 0
	out := make([]dataset.OJKProduct, 0, len(raw))
	for _, r := range raw {
		if !r.ID.Present() {
			o.reject("product", describe(r), "id")
			rejected++
			continue
		}
		out = append(out, dataset.OJKProduct{
			ID:         r.ID.Value,
			Name:       r.Name.Value,
			Management: r.Management.Value,
			Custodian:  r.Custodian.Value,
			Type:       r.Type.Value,
		})
	}
	return out, rejected
}

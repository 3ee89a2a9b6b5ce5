package provider

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/spreadwatch/internal/extract"
	"github.com/sells-group/spreadwatch/internal/model"
)

// Built-in source names.
const (
	SourceCNBC        = "cnbc"
	SourceInvesting   = "investing"
	SourceTeleborsa   = "teleborsa"
	SourceMarketWatch = "marketwatch"
)

// Catalog returns the built-in source definitions in priority order. The
// structured quote API comes first; scraped pages follow, most complete first.
func Catalog() ([]Definition, error) {
	builders := []func() (Definition, error){
		cnbcDefinition,
		investingDefinition,
		teleborsaDefinition,
		marketWatchDefinition,
	}
	defs := make([]Definition, 0, len(builders))
	for _, b := range builders {
		d, err := b()
		if err != nil {
			return nil, &ConfigError{Source: d.Name, Err: err}
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func cnbcDefinition() (Definition, error) {
	labels := map[string]model.FieldKey{
		"IT2Y":  model.BTP2Y,
		"IT5Y":  model.BTP5Y,
		"IT10Y": model.BTP10Y,
		"IT30Y": model.BTP30Y,
		"DE10Y": model.Bund10Y,
	}
	return Definition{
		Name: SourceCNBC,
		Tier: 1,
		URL: "https://quote.cnbc.com/quote-html-webservice/restQuote/symbolType/symbol" +
			"?symbols=IT2Y%7CIT5Y%7CIT10Y%7CIT30Y%7CDE10Y&requestMethod=itv&noform=1&partnerId=2&fund=1&exthrs=0&output=json",
		Headers: map[string]string{"Accept": "application/json"},
		Fields:  model.AllFields,
		Strategies: []extract.Strategy{
			&extract.JSONRecords{
				ArrayPath: "FormattedQuoteResult.FormattedQuote",
				LabelKey:  "symbol",
				ValueKey:  "last",
				ChangeKey: "change",
				Labels:    labels,
			},
			// Older response envelope, still served by some edges.
			&extract.JSONRecords{
				ArrayPath: "QuickQuoteResult.QuickQuote",
				LabelKey:  "symbol",
				ValueKey:  "last",
				ChangeKey: "change",
				Labels:    labels,
			},
		},
	}, nil
}

func investingDefinition() (Definition, error) {
	d := Definition{
		Name:     SourceInvesting,
		Tier:     2,
		URL:      "https://www.investing.com/rates-bonds/italy-government-bonds",
		Headers:  map[string]string{"Referer": "https://www.investing.com/"},
		Fields:   []model.FieldKey{model.BTP2Y, model.BTP5Y, model.BTP10Y, model.BTP30Y},
		HTMLText: true,
	}

	// Rows read "Italy 10Y 3.501 3.480 3.510 3.470 +0.021 +0.60% 10:15:02".
	var patterns []extract.FieldPattern
	for _, row := range []struct {
		key   model.FieldKey
		label string
	}{
		{model.BTP2Y, "Italy 2Y"},
		{model.BTP5Y, "Italy 5Y"},
		{model.BTP10Y, "Italy 10Y"},
		{model.BTP30Y, "Italy 30Y"},
	} {
		p, err := extract.CompilePatterns(row.key,
			row.label+`\s+(?P<value>-?\d+[.,]\d+)\s+(?:\S+\s+){3}(?P<change>[+-]?\d+[.,]\d+)`,
		)
		if err != nil {
			return d, err
		}
		patterns = append(patterns, p...)
	}

	table, err := extract.NewTable(`(?m)^(?P<label>Italy\s+\d+Y)\s+(?P<value>-?\d+[.,]\d+)`, map[string]model.FieldKey{
		"Italy 2Y":  model.BTP2Y,
		"Italy 5Y":  model.BTP5Y,
		"Italy 10Y": model.BTP10Y,
		"Italy 30Y": model.BTP30Y,
	})
	if err != nil {
		return d, err
	}

	d.Strategies = []extract.Strategy{&extract.Patterns{List: patterns}, table}
	return d, nil
}

func teleborsaDefinition() (Definition, error) {
	d := Definition{
		Name:     SourceTeleborsa,
		Tier:     3,
		URL:      "https://www.teleborsa.it/Quotazioni/Spread",
		Fields:   []model.FieldKey{model.BTP10Y, model.Bund10Y, model.BTP2Y},
		HTMLText: true,
	}

	var patterns []extract.FieldPattern
	for _, spec := range []struct {
		key   model.FieldKey
		exprs []string
	}{
		{model.BTP10Y, []string{
			`(?i)Rendimento\s+BTP\s+10\s+anni\D{0,20}?(?P<value>\d{1,2},\d{2,3})(?:\s*%?\s*\(?(?P<change>[+-]\d+,\d+)\)?)?`,
			`(?i)BTP\s*10\s*(?:anni|Y)\D{0,40}?(?P<value>\d{1,2},\d{2,3})`,
		}},
		{model.Bund10Y, []string{
			`(?i)Rendimento\s+Bund\s+10\s+anni\D{0,20}?(?P<value>\d{1,2},\d{2,3})(?:\s*%?\s*\(?(?P<change>[+-]\d+,\d+)\)?)?`,
			`(?i)Bund\s*10\s*(?:anni|Y)\D{0,40}?(?P<value>\d{1,2},\d{2,3})`,
		}},
		{model.BTP2Y, []string{
			`(?i)BTP\s*2\s*(?:anni|Y)\D{0,40}?(?P<value>\d{1,2},\d{2,3})`,
		}},
	} {
		p, err := extract.CompilePatterns(spec.key, spec.exprs...)
		if err != nil {
			return d, err
		}
		patterns = append(patterns, p...)
	}

	table, err := extract.NewTable(
		`(?m)^(?P<label>(?:BTP|Bund)\s+\d+\s+anni)\s+(?P<value>-?\d+,\d+)(?:\s+(?P<change>[+-]\d+,\d+))?`,
		map[string]model.FieldKey{
			"BTP 10 anni":  model.BTP10Y,
			"Bund 10 anni": model.Bund10Y,
			"BTP 2 anni":   model.BTP2Y,
		})
	if err != nil {
		return d, err
	}

	d.Strategies = []extract.Strategy{&extract.Patterns{List: patterns}, table}
	return d, nil
}

func marketWatchDefinition() (Definition, error) {
	d := Definition{
		Name:   SourceMarketWatch,
		Tier:   4,
		URL:    "https://www.marketwatch.com/investing/bond/tmbmkde-10y?countrycode=bx",
		Fields: []model.FieldKey{model.Bund10Y},
	}
	patterns, err := extract.CompilePatterns(model.Bund10Y,
		`(?s)<meta\s+name="price"\s+content="(?P<value>-?\d+\.\d+)%?"\s*/?>.*?<meta\s+name="priceChange"\s+content="(?P<change>[+-]?\d+\.\d+)"`,
		`<meta\s+name="price"\s+content="(?P<value>-?\d+\.\d+)%?"`,
		`<bg-quote[^>]*field="Last"[^>]*>(?P<value>-?\d+\.\d+)</bg-quote>`,
	)
	if err != nil {
		return d, eris.Wrap(err, "marketwatch patterns")
	}
	d.Strategies = []extract.Strategy{&extract.Patterns{List: patterns}}
	return d, nil
}

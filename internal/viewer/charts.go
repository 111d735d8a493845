package viewer

import (
	"cuiregistry/internal/cui"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Chart titles and series names.
const (
	SourcesTitle    = "Sources per CUI Category"
	SanctionsTitle  = "Sanctions per CUI Category"
	SourcesSeries   = "Source Count"
	SanctionsSeries = "Sanction Count"
)

// Charts holds the two bar charts for one filtered view.
type Charts struct {
	Sources   *charts.Bar
	Sanctions *charts.Bar
}

// BuildCharts aggregates records per category. The sanctions chart counts
// only records with at least one non-empty sanction entry, so categories
// without any are absent from it.
func BuildCharts(records []cui.Record) Charts {
	return Charts{
		Sources:   barChart("sources", SourcesTitle, SourcesSeries, cui.CountByCategory(records)),
		Sanctions: barChart("sanctions", SanctionsTitle, SanctionsSeries, cui.SanctionedByCategory(records)),
	}
}

func barChart(id, title, series string, counts []cui.CategoryCount) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			ChartID:   id,
			Width:     "100%",
			Height:    "420px",
		}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "CUI Category", AxisLabel: &opts.AxisLabel{Rotate: 30}}),
		charts.WithYAxisOpts(opts.YAxis{Name: series}),
	)

	x := make([]string, len(counts))
	data := make([]opts.BarData, len(counts))
	for i, c := range counts {
		x[i] = c.Category
		data[i] = opts.BarData{Name: c.Category, Value: c.Count}
	}
	bar.SetXAxis(x).AddSeries(series, data)
	return bar
}

// Package summary tabulates the parameters of a model manifest.
package summary

import (
	"fmt"
	"io"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sugarme/dsrl/base"
)

// Row is a single parameter record.
type Row struct {
	Name      string
	Group     string
	Kind      string
	Shape     string
	Numel     int
	Trainable bool
}

// Groups lists the learning-rate groups in table order.
var Groups = []base.Group{base.Group1x, base.Group10x, base.GroupNone}

// Table returns one row per declared parameter.
func Table(m *base.Manifest) dataframe.DataFrame {
	var rows []Row
	for _, p := range m.Params() {
		size := p.Tensor.MustSize()
		numel := 1
		for _, d := range size {
			numel *= int(d)
		}
		rows = append(rows, Row{
			Name:      p.Name,
			Group:     p.Group.String(),
			Kind:      p.Kind.String(),
			Shape:     fmt.Sprint(size),
			Numel:     numel,
			Trainable: p.Tensor.MustRequiresGrad(),
		})
	}

	return dataframe.LoadStructs(rows)
}

// WriteCSV writes df as CSV with a header line.
func WriteCSV(df dataframe.DataFrame, w io.Writer) error {
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

// Total is the parameter count of a group.
type Total struct {
	Group   string
	Tensors int
	Numel   int
}

// GroupTotals sums the rows of df per learning-rate group.
func GroupTotals(df dataframe.DataFrame) ([]Total, error) {
	if df.Err != nil {
		return nil, df.Err
	}

	var totals []Total
	for _, g := range Groups {
		sub := df.Filter(dataframe.F{
			Colname:    "Group",
			Comparator: series.Eq,
			Comparando: g.String(),
		})
		if sub.Err != nil {
			return nil, sub.Err
		}

		var numel float64
		for _, v := range sub.Col("Numel").Float() {
			numel += v
		}
		totals = append(totals, Total{Group: g.String(), Tensors: sub.Nrow(), Numel: int(numel)})
	}

	return totals, nil
}

// PlotGroups saves a bar chart of parameter counts per group to file. The
// image format is given by the file extension.
func PlotGroups(totals []Total, file string) error {
	p, err := plot.New()
	if err != nil {
		return err
	}

	v := make(plotter.Values, len(totals))
	names := make([]string, len(totals))
	for i, t := range totals {
		v[i] = float64(t.Numel)
		names[i] = t.Group
	}

	bars, err := plotter.NewBarChart(v, vg.Points(30))
	if err != nil {
		return err
	}
	p.Title.Text = "Parameters per learning-rate group"
	p.Y.Label.Text = "elements"
	p.Add(bars)
	p.NominalX(names...)

	return p.Save(4*vg.Inch, 4*vg.Inch, file)
}

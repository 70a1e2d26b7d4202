package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sugarme/dsrl/summary"
)

// runParams writes the parameter table to OutDir/params.csv and prints the
// learning-rate group totals.
func runParams() error {
	_, net, err := newModel()
	if err != nil {
		return err
	}

	df := summary.Table(net.Manifest())
	if err := os.MkdirAll(OutDir, 0755); err != nil {
		return err
	}
	file := filepath.Join(OutDir, "params.csv")
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := summary.WriteCSV(df, f); err != nil {
		return err
	}

	totals, err := summary.GroupTotals(df)
	if err != nil {
		return err
	}
	for _, t := range totals {
		fmt.Printf("%-5v %5d tensors %12d elements\n", t.Group, t.Tensors, t.Numel)
	}
	fmt.Printf("low-lr: %v tensors - high-lr: %v tensors\n", len(net.LowLRParams()), len(net.HighLRParams()))
	fmt.Printf("Saved parameter table to %q\n", file)

	return nil
}

// runPlot saves a bar chart of the group totals to OutDir/params.png.
func runPlot() error {
	_, net, err := newModel()
	if err != nil {
		return err
	}

	totals, err := summary.GroupTotals(summary.Table(net.Manifest()))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(OutDir, 0755); err != nil {
		return err
	}
	file := filepath.Join(OutDir, "params.png")
	if err := summary.PlotGroups(totals, file); err != nil {
		return err
	}
	fmt.Printf("Saved group chart to %q\n", file)

	return nil
}

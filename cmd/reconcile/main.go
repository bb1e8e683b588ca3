// Command reconcile verifies bill JSON files from disk and prints their
// summaries, optionally writing a combined Excel report.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/bill-reconciler/internal/domain/entity"
	"github.com/garyjia/bill-reconciler/internal/export"
	"github.com/garyjia/bill-reconciler/internal/extract"
	"github.com/garyjia/bill-reconciler/internal/reconcile"
	"github.com/garyjia/bill-reconciler/internal/summary"
)

func main() {
	tolerance := flag.String("tolerance", "0.01", "monetary tolerance for comparisons")
	xlsxPath := flag.String("xlsx", "", "write a combined Excel report to this path")
	quiet := flag.Bool("quiet", false, "suppress per-bill output, print only the combined section")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: reconcile [flags] bill.json [bill.json ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	tol, err := decimal.NewFromString(*tolerance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid tolerance %q: %v\n", *tolerance, err)
		os.Exit(2)
	}

	logger := zap.NewNop()
	extractor := extract.NewExtractor(logger)
	summarizer := summary.NewSummarizer(reconcile.Config{Tolerance: tol}, logger)

	bills := make([]*entity.Bill, 0, flag.NArg())
	for _, path := range flag.Args() {
		bill, err := extractor.FromJSONFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		bills = append(bills, bill)
	}

	result := summarizer.SummarizeAll(bills)

	if *quiet {
		trimmed := result
		trimmed.Summaries = nil
		fmt.Print(summary.FormatCombined(trimmed))
	} else {
		fmt.Print(summary.FormatCombined(result))
	}

	if *xlsxPath != "" {
		reporter := export.NewExcelReporter(logger)
		if err := reporter.WriteReport(result, *xlsxPath); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Report written to %s\n", *xlsxPath)
	}

	if len(result.InconsistentBillIDs) > 0 {
		os.Exit(1)
	}
}

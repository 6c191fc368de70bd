package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

const formatTable = "table"

// report prints the results of a test as a table, or exports them as CSV or XLSX.
func (cli *commandLine) report(testID, format, outPath string) error {
	ctx := context.Background()
	if format == formatTable {
		return cli.printResults(ctx, testID)
	}

	sheetFmt, err := core.ParseSheetFormat(format)
	if err != nil {
		return err
	}
	var w io.Writer = cli.out
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return errors.Wrap(err, "creating export file")
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := cli.reports.Export(ctx, testID, sheetFmt, w); err != nil {
		return err
	}
	if outPath != "" {
		_, _ = color.New(color.FgGreen).Fprintf(cli.out, "results exported to %s\n", outPath)
	}
	return nil
}

func (cli *commandLine) printResults(ctx context.Context, testID string) error {
	tst, rows, err := cli.reports.Results(ctx, testID)
	if err != nil {
		return err
	}
	summary, err := cli.reports.TestSummary(ctx, testID)
	if err != nil {
		return err
	}

	_, _ = color.New(color.Bold).Fprintf(cli.out, "%s (%g marks, %g to pass)\n", tst.Name, tst.TotalMarks, tst.PassingMarks)

	table := tablewriter.NewWriter(cli.out)
	table.SetHeader([]string{"Roll No", "Name", "Status", "Score", "%", "Grade", "Result"})
	table.SetAutoWrapText(false)
	for _, row := range rows {
		var score, percent, result string
		if row.Score != nil {
			score = strconv.FormatFloat(*row.Score, 'f', -1, 64)
			percent = strconv.FormatFloat(row.Percent, 'f', 2, 64)
			result = "fail"
			if row.Passed {
				result = "pass"
			}
		}
		table.Append([]string{row.RollNumber, row.Name, row.Status, score, percent, row.Grade, result})
	}
	table.Render()

	line := fmt.Sprintf(
		"evaluated: %d, average: %g, highest: %g, lowest: %g, median: %g, pass rate: %g%%\n",
		summary.Count, summary.Average, summary.Highest, summary.Lowest, summary.Median, summary.PassRate,
	)
	c := color.New(color.FgGreen)
	if summary.Count > 0 && summary.PassRate < 50 {
		c = color.New(color.FgYellow)
	}
	_, _ = c.Fprint(cli.out, line)
	return nil
}

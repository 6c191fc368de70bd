package main

import (
	"context"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

var errImportIncomplete = errors.New("some rows were not imported")

// importStudents imports a roster file into a class and prints the rejected rows.
func (cli *commandLine) importStudents(classID, path string) error {
	format, err := core.ParseSheetFormat(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening roster")
	}
	defer func() { _ = f.Close() }()

	res, err := cli.students.Import(context.Background(), classID, format, f)
	if err != nil {
		return err
	}

	_, _ = color.New(color.FgGreen).Fprintf(cli.out, "imported %d of %d students\n", len(res.Created), res.Total)
	if len(res.Errors) == 0 {
		return nil
	}

	_, _ = color.New(color.FgRed).Fprintf(cli.out, "%d errors:\n", len(res.Errors))
	table := tablewriter.NewWriter(cli.out)
	table.SetHeader([]string{"Row", "Field", "Error"})
	table.SetAutoWrapText(false)
	for _, re := range res.Errors {
		table.Append([]string{strconv.Itoa(re.Row), re.Field, re.Error})
	}
	table.Render()
	return errImportIncomplete
}

package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/tathmini/core/report"
	"github.com/trezcool/tathmini/core/student"
	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp          = errors.New("help provided")
	errNoSQLDatabase = errors.New("migrations need the postgres database (DATABASE_IN_MEMORY is set)")
)

type commandLine struct {
	db       *sql.DB // nil with the in-memory database
	usrRepo  user.Repository
	students *student.Service
	reports  *report.Service
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-name NAME] [-admin] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose command (up, down, status, redo, version, ...)")
	fmt.Fprintln(cli.out, "  import-students -class CLASS_ID -file FILE.csv|FILE.xlsx - import the students of a class")
	fmt.Fprintln(cli.out, "  report -test TEST_ID [-format table|csv|xlsx] [-out FILE] - print or export the results of a test")
}

// readPassword prompts for a password. An empty password prints the usage of fs.
func (cli *commandLine) readPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Give the user all the roles.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	importCmd := flag.NewFlagSet("import-students", flag.ContinueOnError)
	importClass := importCmd.String("class", "", "The ID of the class.")
	importFile := importCmd.String("file", "", "The CSV or XLSX file listing the students.")

	reportCmd := flag.NewFlagSet("report", flag.ContinueOnError)
	reportTest := reportCmd.String("test", "", "The ID of the test.")
	reportFormat := reportCmd.String("format", formatTable, "One of table, csv or xlsx.")
	reportOut := reportCmd.String("out", "", "The file to export to. Defaults to the standard output.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, importCmd, reportCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "import-students":
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importClass == "" || *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importStudents(*importClass, *importFile)

	case "report":
		if err := reportCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *reportTest == "" {
			reportCmd.Usage()
			return errHelp
		}
		return cli.report(*reportTest, *reportFormat, *reportOut)

	default:
		cli.printUsage()
		return errHelp
	}
}

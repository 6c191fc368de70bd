package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/user"
	testutil "github.com/trezcool/tathmini/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.App, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true

	app := testutil.NewApp(t)
	out := new(bytes.Buffer)
	return &commandLine{
		usrRepo:  app.Repos.Users,
		students: app.Students,
		reports:  app.Reports,
		out:      out,
	}, app, out
}

func withPassword(t *testing.T, pwd string) {
	t.Helper()
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	t.Run("in-memory database", func(t *testing.T) {
		err := cli.run([]string{"admin", "migrate", "up"})
		if err != errNoSQLDatabase {
			t.Errorf("cli.run() error = %v, wantErr %v", err, errNoSQLDatabase)
		}
	})

	db, err := sql.Open("postgres", "postgres://localhost/tathmini_test?sslmode=disable") // never connects
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	cli.db = db

	var ran []string
	origMigrate := migrateFunc
	t.Cleanup(func() { migrateFunc = origMigrate })
	migrateFunc = func(_ *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, strings.TrimSpace(command+" "+strings.Join(args, " ")))
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}, extra: "up"},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}, extra: "up-to 2"},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}, extra: "down-to 1"},
		{name: "status", args: []string{"migrate", "status"}, extra: "status"},
		{name: "create", args: []string{"migrate", "create", "rubric", "sql"}, extra: "create rubric sql"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			ran = nil
			tt.check(t, cli.run(args))
			if want, ok := tt.extra.(string); ok {
				assert.Equal(t, []string{want}, ran)
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, app, _ := setup(t)
	usrRepo := app.Repos.Users

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.tz", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", strings.ToUpper(usr.Email)}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			var pwd string
			if e, ok := tt.extra.(extra); ok {
				pwd = e.pwd
			}
			withPassword(t, pwd)

			err := cli.run(args)
			if err != nil {
				tt.check(t, err)
				return
			}
			refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshedUsr.CheckPassword(pwd), "failed to update new password")
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, app, out := setup(t)
	usrRepo := app.Repos.Users
	existing := testutil.CreateUser(t, usrRepo, "Existing", "existing", "existing@test.tz", "mdr", []string{user.RoleTeacher}, false)

	tests := []cliTest{
		{name: "no username nor email", args: []string{"adduser", "-name", "Nobody"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "nobody"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "-lol"}, wantErr: errHelp},
		{name: "admin created", args: []string{"adduser", "-username", "Boss", "-email", "BOSS@test.tz", "-admin"}, extra: "Adm1n@pass"},
		{name: "teacher created", args: []string{"adduser", "-email", "mwalimu@test.tz", "-name", " Mwalimu "}, extra: "T3acher@pass"},
		{name: "existing updated", args: []string{"adduser", "-email", existing.Email}, extra: "N3w@pass"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			pwd, _ := tt.extra.(string)
			withPassword(t, pwd)
			tt.check(t, cli.run(args))
		})
	}

	ctx := context.Background()
	t.Run("admin", func(t *testing.T) {
		usr, err := usrRepo.GetUser(ctx, user.GetFilter{Username: "boss"})
		require.NoError(t, err)
		assert.Equal(t, "boss@test.tz", usr.Email)
		assert.Equal(t, "boss", usr.Name)
		assert.ElementsMatch(t, user.AllRoles, usr.Roles)
		assert.True(t, usr.IsActive)
		assert.NoError(t, usr.CheckPassword("Adm1n@pass"))
	})

	t.Run("teacher", func(t *testing.T) {
		usr, err := usrRepo.GetUser(ctx, user.GetFilter{Email: "mwalimu@test.tz"})
		require.NoError(t, err)
		assert.Equal(t, "Mwalimu", usr.Name)
		assert.Equal(t, []string{user.RoleTeacher}, usr.Roles)
		assert.True(t, usr.IsTeacher())
	})

	t.Run("existing", func(t *testing.T) {
		usr, err := usrRepo.GetUser(ctx, user.GetFilter{ID: existing.ID})
		require.NoError(t, err)
		assert.Equal(t, "Existing", usr.Name)
		assert.True(t, usr.IsActive, "reactivated")
		assert.NoError(t, usr.CheckPassword("N3w@pass"))
		assert.Contains(t, out.String(), "user existing updated")
	})
}

func Test_commandLine_importStudents(t *testing.T) {
	cli, app, out := setup(t)
	cls := app.CreateClass(t, "Form One", "A")

	dir := t.TempDir()
	roster := filepath.Join(dir, "roster.csv")
	require.NoError(t, os.WriteFile(roster, []byte("Name,Roll No,Email\nAmani,R-001,amani@test.tz\nBaraka,R-002,\n,R-003,\n"), 0o600))
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0o600))

	tests := []cliTest{
		{name: "no args", args: []string{"import-students"}, wantErr: errHelp},
		{name: "no file", args: []string{"import-students", "-class", cls.ID}, wantErr: errHelp},
		{name: "wrong file type", args: []string{"import-students", "-class", cls.ID, "-file", notes}, wantErr: core.ErrUnknownSheetFormat},
		{name: "imported with errors", args: []string{"import-students", "-class", cls.ID, "-file", roster}, wantErr: errImportIncomplete},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	assert.Contains(t, out.String(), "imported 2 of 3 students")
	assert.Contains(t, out.String(), "this field is required")

	t.Run("missing file", func(t *testing.T) {
		err := cli.run([]string{"admin", "import-students", "-class", cls.ID, "-file", filepath.Join(dir, "lost.csv")})
		assert.Error(t, err)
	})

	t.Run("unknown class", func(t *testing.T) {
		err := cli.run([]string{"admin", "import-students", "-class", "nope", "-file", roster})
		assert.Error(t, err)
	})
}

func Test_commandLine_report(t *testing.T) {
	cli, app, out := setup(t)
	ctx := context.Background()

	cls := app.CreateClass(t, "Form One", "A")
	bio := app.CreateSubject(t, "Biology", "BIO", cls.ID)
	tst := app.CreateTest(t, "Midterm", cls.ID, bio.ID, 10, 5)
	app.CreateQuestion(t, tst.ID, "Describe the cell membrane.", 10)
	amani := app.CreateStudent(t, cls.ID, "Amani", "R-001")
	app.CreateStudent(t, cls.ID, "Baraka", "R-002")
	app.UploadSheet(t, tst.ID, amani.ID, "amani.pdf")

	_, err := app.Evaluation.Start(ctx, tst.ID)
	require.NoError(t, err)
	app.AI.Reply(`{"score": 8, "feedback": "Good.", "results": [{"question_number": 1, "awarded": 8, "max": 10}]}`)
	n, err := app.Evaluation.ProcessDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	t.Run("no test", func(t *testing.T) {
		(cliTest{wantErr: errHelp}).check(t, cli.run([]string{"admin", "report"}))
	})

	t.Run("table", func(t *testing.T) {
		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "report", "-test", tst.ID}))
		got := out.String()
		assert.Contains(t, got, "Midterm (10 marks, 5 to pass)")
		assert.Contains(t, got, "ROLL NO")
		assert.Contains(t, got, "Amani")
		assert.Contains(t, got, "80.00")
		assert.Contains(t, got, "not evaluated")
		assert.Contains(t, got, "evaluated: 1, average: 8")
	})

	t.Run("csv to stdout", func(t *testing.T) {
		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "report", "-test", tst.ID, "-format", "csv"}))
		assert.True(t, strings.HasPrefix(out.String(), "roll_number,name,status,score"))
		assert.Contains(t, out.String(), "R-001,Amani,completed,8,10,80.00,A,pass,Good.")
	})

	t.Run("xlsx to file", func(t *testing.T) {
		out.Reset()
		path := filepath.Join(t.TempDir(), "midterm.xlsx")
		require.NoError(t, cli.run([]string{"admin", "report", "-test", tst.ID, "-format", "xlsx", "-out", path}))
		assert.Contains(t, out.String(), "results exported to "+path)

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		rows, err := core.ReadSheet(core.FormatXLSX, f)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("unknown format", func(t *testing.T) {
		err := cli.run([]string{"admin", "report", "-test", tst.ID, "-format", "pdf"})
		assert.Equal(t, core.ErrUnknownSheetFormat, err)
	})

	t.Run("unknown test", func(t *testing.T) {
		err := cli.run([]string{"admin", "report", "-test", "nope"})
		assert.Error(t, err)
	})
}

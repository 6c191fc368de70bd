package main

import (
	"log"
	"os"

	dig_container "github.com/trezcool/tathmini/apps/api/di/dig"
	"github.com/trezcool/tathmini/core"
)

func main() {
	logger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	c := dig_container.New(core.NewConfig)

	var cli *commandLine
	err := c.Invoke(func(storage dig_container.Storage, svcs dig_container.Services) {
		cli = &commandLine{
			usrRepo:  storage.Repos.Users,
			students: svcs.Students,
			reports:  svcs.Reports,
			out:      os.Stdout,
		}
		if storage.SQL != nil {
			cli.db = storage.SQL.DB
		}
	})
	if err != nil {
		logger.Fatal(err)
	}

	code := 0
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		code = 1
	}
	if cli.db != nil {
		_ = cli.db.Close()
	}
	os.Exit(code)
}

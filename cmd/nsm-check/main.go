package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/veilware/nsm"
)

func main() {
	app := &cli.App{
		Name:   "nsm-check",
		Usage:  "Check an NSM device against its expected configuration",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "device",
				Usage: "path to the NSM device file",
				Value: nsm.DevicePath,
			},
			&cli.StringFlag{
				Name:  "expectations",
				Usage: "YAML file describing the expected device configuration",
			},
			&cli.BoolFlag{
				Name:  "mutate",
				Usage: "run probes that extend and lock PCRs",
			},
			&cli.IntFlag{
				Name:  "random-iterations",
				Usage: "number of GetRandom draws to compare",
				Value: 16,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println("error: " + err.Error())
		os.Exit(1)
	}
}

func run(cliContext *cli.Context) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}

	expect := DefaultExpectations()
	if path := cliContext.String("expectations"); path != "" {
		expect, err = LoadExpectations(path)
		if err != nil {
			return err
		}
	}

	sess, err := nsm.OpenSession(nsm.Options{
		Path:   cliContext.String("device"),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	checker := &Checker{
		logger:           logger,
		session:          sess,
		expect:           expect,
		mutate:           cliContext.Bool("mutate"),
		randomIterations: cliContext.Int("random-iterations"),
	}

	return checker.Run()
}

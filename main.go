package main

import (
	"fmt"
	"os"
	"os/signal"

	"zkapp-node/common"
	"zkapp-node/config"
	"zkapp-node/log"
	"zkapp-node/node"

	"github.com/urfave/cli"
)

const (
	flagCfg = "cfg"
)

func getConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(flagCfg))
	if err != nil {
		return nil, common.Wrap(err)
	}
	return cfg, nil
}

func waitSigInt() {
	stopCh := make(chan interface{})

	// catch ^C to send the stop signal
	ossig := make(chan os.Signal, 1)
	signal.Notify(ossig, os.Interrupt)
	const forceStopCount = 3
	go func() {
		n := 0
		for sig := range ossig {
			if sig == os.Interrupt {
				log.Info("Received Interrupt Signal")
				stopCh <- nil
				n++
				if n == forceStopCount {
					log.Fatalf("Received %v Interrupt Signals", forceStopCount)
				}
			}
		}
	}()
	<-stopCh
}

func cmdRun(c *cli.Context) error {
	cfg, err := getConfig(c)
	if err != nil {
		if err := cli.ShowAppHelp(c); err != nil {
			panic(err)
		}
		return common.Wrap(fmt.Errorf("error parsing flags and config: %w", err))
	}
	log.Init(cfg.Log.Level, cfg.Log.Outputs)
	innerNode, err := node.NewNode(cfg, c.App.Version)
	if err != nil {
		return common.Wrap(fmt.Errorf("error starting node: %w", err))
	}
	innerNode.Start()
	waitSigInt()
	innerNode.Stop()

	return nil
}

func cmdVersion(c *cli.Context) error {
	fmt.Println(c.App.Version)
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "zkapp-node"
	app.Version = "v0.1.0"

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     flagCfg,
			Usage:    "Node configuration `FILE`",
			Required: false,
		},
	}

	app.Commands = []cli.Command{
		{
			Name:    "version",
			Aliases: []string{},
			Usage:   "Show the application version",
			Action:  cmdVersion,
		},
		{
			Name:    "run",
			Aliases: []string{},
			Usage:   "Run the zkapp-node",
			Action:  cmdRun,
			Flags:   flags,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Printf("\nError: %v\n", common.Wrap(err))
		os.Exit(1)
	}
}

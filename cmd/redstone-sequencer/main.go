package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ethereum/go-ethereum/log"
)

var (
	chainSpecFlag = &cli.StringFlag{
		Name:     "chain-spec",
		Usage:    "Path of the genesis JSON file",
		Required: true,
	}
	dbPathFlag = &cli.StringFlag{
		Name:     "db-path",
		Usage:    "Directory of the chain database",
		Required: true,
	}
	engineAddrFlag = &cli.StringFlag{
		Name:  "rpc-bind-addr-a",
		Usage: "Bind address of the authenticated engine API",
		Value: "127.0.0.1:8551",
	}
	ethAddrFlag = &cli.StringFlag{
		Name:  "rpc-bind-addr-b",
		Usage: "Bind address of the public eth API",
		Value: "127.0.0.1:8545",
	}
	jwtSecretFlag = &cli.StringFlag{
		Name:  "engine-api-secret-path",
		Usage: "Path of the hex-encoded 32-byte engine API secret (generated when absent)",
		Value: "jwt.hex",
	}
	extraDataFlag = &cli.StringFlag{
		Name:  "extra-data",
		Usage: "Extra data of sealed blocks",
		Value: "redstone",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Write logs to a rotated file instead of the terminal",
	}
)

func main() {
	app := &cli.App{
		Name:  "redstone-sequencer",
		Usage: "Engine-API driven rollup sequencer",
		Flags: []cli.Flag{verbosityFlag, logFileFlag},
		Before: func(ctx *cli.Context) error {
			setupLogging(ctx)
			return nil
		},
		Commands: []*cli.Command{
			initCommand,
			nodeCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) {
	var (
		output   io.Writer
		useColor bool
	)
	if file := ctx.String(logFileFlag.Name); file != "" {
		output = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100,
			MaxBackups: 10,
			Compress:   true,
		}
	} else {
		useColor = isatty.IsTerminal(os.Stderr.Fd())
		if useColor {
			output = colorable.NewColorableStderr()
		} else {
			output = os.Stderr
		}
	}
	level := log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(output, level, useColor)))
}

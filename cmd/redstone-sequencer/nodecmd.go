package main

import (
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/RGafiyatullin/redstone-sequencer/chain"
	"github.com/RGafiyatullin/redstone-sequencer/node"
	"github.com/RGafiyatullin/redstone-sequencer/sequencer"
)

var nodeCommand = &cli.Command{
	Name:  "node",
	Usage: "Run the sequencer node",
	Flags: []cli.Flag{
		chainSpecFlag,
		dbPathFlag,
		engineAddrFlag,
		ethAddrFlag,
		jwtSecretFlag,
		extraDataFlag,
	},
	Action: func(ctx *cli.Context) error {
		genesis, err := chain.LoadChainSpec(ctx.String(chainSpecFlag.Name))
		if err != nil {
			return err
		}
		db, err := chain.OpenDatabase(ctx.String(dbPathFlag.Name), false)
		if err != nil {
			return err
		}
		defer db.Close()

		if _, err := chain.Init(db, genesis); err != nil {
			return err
		}
		ch, err := chain.New(db, genesis)
		if err != nil {
			return err
		}
		defer ch.Close()

		eng := sequencer.New(ch, []byte(ctx.String(extraDataFlag.Name)))
		n, err := node.New(node.Config{
			EngineAddr:    ctx.String(engineAddrFlag.Name),
			EthAddr:       ctx.String(ethAddrFlag.Name),
			JWTSecretPath: ctx.String(jwtSecretFlag.Name),
		}, eng)
		if err != nil {
			return err
		}

		runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return n.Run(runCtx)
	},
}

package main

import (
	"github.com/urfave/cli/v2"

	"github.com/RGafiyatullin/redstone-sequencer/chain"
)

var initCommand = &cli.Command{
	Name:  "init",
	Usage: "Initialize the chain database at genesis",
	Flags: []cli.Flag{chainSpecFlag, dbPathFlag},
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

		_, err = chain.Init(db, genesis)
		return err
	},
}

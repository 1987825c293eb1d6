// Command mxstsd resolves MTA-STS policies for a Postfix-compatible MTA
// over the socketmap protocol.
package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mxstsd/mxstsd/internal/log"
)

func main() {
	app := &cli.App{
		Name:  "mxstsd",
		Usage: "MTA-STS policy resolution daemon",
		Commands: []*cli.Command{
			runCommand,
		},
		ExitErrHandler: func(c *cli.Context, err error) {
			cli.HandleExitCoder(err)
			if err != nil {
				log.Println(err)
				cli.OsExiter(2)
			}
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.DefaultLogger.Error("app.Run failed", err)
	}
}

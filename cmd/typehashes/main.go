package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

const appName = "typehashes"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "Seaport BulkOrder type hash tooling"

	maxFlag := &cli.IntFlag{
		Name:    "max",
		Aliases: []string{"m"},
		Usage:   "Largest tree `HEIGHT` to include",
		Value:   24,
	}
	app.Commands = []*cli.Command{
		{
			Name:   "table",
			Usage:  "Print the type hash for every height up to --max",
			Action: tableCmd,
			Flags: []cli.Flag{
				maxFlag,
				&cli.BoolFlag{Name: "json", Usage: "Emit JSON instead of text"},
			},
		},
		{
			Name:   "directory",
			Usage:  "Print the runtime code of a type hash directory contract",
			Action: directoryCmd,
			Flags:  []cli.Flag{maxFlag},
		},
		{
			Name:   "typestring",
			Usage:  "Print the EIP-712 type string for one height",
			Action: typeStringCmd,
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "height", Usage: "Tree `HEIGHT`", Required: true},
			},
		},
	}
	return app
}

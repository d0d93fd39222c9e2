package main

import (
	"log"

	"github.com/BIwashi/canframe/app/convert"
	"github.com/BIwashi/canframe/app/dump"
	"github.com/BIwashi/canframe/pkg/cli"
)

func main() {
	c := cli.NewCLI(
		"canframe",
		"Read CAN frames from pcapng captures and convert them to MCAP, JSON lines or MessagePack.",
	)

	c.AddCommands(
		convert.NewCommand(),
		dump.NewCommand(),
	)

	if err := c.Run(); err != nil {
		log.Fatal(err)
	}
}

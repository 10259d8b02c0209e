package main

import (
	"github.com/fleetflow/freight-ai/internal/cli"
)

func main() {
	cli.Execute()
}

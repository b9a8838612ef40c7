package main

import (
	"context"

	"offers-harvester/cmd/offers-harvester/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}

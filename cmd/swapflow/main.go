package main

import (
	"os"

	"github.com/nmorales94/swapflow/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}

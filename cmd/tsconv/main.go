package main

import (
	"context"
	"os"

	"github.com/liamcoop/timestamps/internal/cli"
	"github.com/liamcoop/timestamps/internal/logger"
)

func main() {
	err := cli.NewRootCmd().Execute()
	_ = logger.Shutdown(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/hostelpay/internal/admin/cli"
)

func main() {
	if err := cli.NewRootCmd(cli.OpenDeps).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

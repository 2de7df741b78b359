// Command dlogrctl runs operator tasks against the dlogr database.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/dlogr/internal/admin"
	"github.com/dmitrijs2005/dlogr/internal/server"
	"github.com/dmitrijs2005/dlogr/internal/server/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	args := os.Args[1:]
	if len(args) == 0 || !admin.Known(args[0]) {
		admin.Usage(os.Stderr)
		return 2
	}

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer app.Close(ctx)

	if err := admin.New(app, os.Stdin, os.Stdout).Run(ctx, args); err != nil {
		if errors.Is(err, admin.ErrUsage) {
			return 2
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/dlogr/internal/server"
	"github.com/dmitrijs2005/dlogr/internal/server/config"
)

func run(ctx context.Context, cfg *config.Config) error {
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	app.Run(ctx)
	return nil
}

func main() {
	if err := run(context.Background(), config.LoadConfig()); err != nil {
		log.Fatalf("dlogr: %v", err)
	}
}

// Command server runs the hostel payments HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/hostelpay/internal/server"
	"github.com/dmitrijs2005/hostelpay/internal/server/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	app.Run(ctx)
}

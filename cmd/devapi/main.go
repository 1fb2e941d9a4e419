package main

import (
	"log"

	"github.com/aussiebroadwan/pmboard/internal/devapi/app"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg, nil)
	if err != nil {
		log.Fatalf("failed to initialize devapi: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("devapi error: %v", err)
	}
}

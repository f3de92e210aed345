package main

import (
	"log"

	"github.com/raedjah1/bopmaps-cache/internal/app"
	"github.com/raedjah1/bopmaps-cache/pkg/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalln("failed to load config: ", err)
	}

	app.Run(cfg)
}

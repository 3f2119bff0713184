package main

import (
	"flag"
	"log"

	"callbell/config"
	"callbell/server"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file (yaml/toml/json)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var app server.App
	if err := app.Initialize(cfg); err != nil {
		log.Fatalf("init: %v", err)
	}
	if err := app.Run(); err != nil {
		log.Fatalf("run: %v", err)
	}
}

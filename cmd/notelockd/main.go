package main

import (
	"log"

	"github.com/EduardF1/adversus-interview-assignment/core/gateway"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/buildinfo"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/config"
)

func main() {
	log.Println("notelockd starting...")
	buildinfo.Log("notelockd")
	cfg, err := config.LoadWithOverlay()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := gateway.Run(cfg); err != nil {
		log.Fatalf("notelockd error: %v", err)
	}
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"pixgate/internal/config"
	"pixgate/server"
	"syscall"
)

func main() {
	configPath := flag.String("conf", "config.yml", "path to the configuration file")
	flag.Parse()

	conf, err := config.GetConfig(*configPath)
	if err != nil {
		log.Println("configuration load failed", err)
		os.Exit(1)
	}

	gateway, err := server.NewGateway(conf)
	if err != nil {
		log.Println("gateway initialization failed", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = gateway.Run(ctx); err != nil {
		log.Println("gateway stopped", err)
		os.Exit(1)
	}
	log.Println("gateway stopped")
}

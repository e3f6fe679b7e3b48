package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder"
)

func main() {
	cfg, err := canarybridge.LoadConfig("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := canarybridge.NewRuntime(cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("forwarder exited: %v", err)
	}
}

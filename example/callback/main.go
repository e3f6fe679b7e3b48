package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/pkg/canarybridge"
)

func main() {
	cfg, err := canarybridge.LoadConfig("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stdout := canarybridge.NewCallbackPublisher("stdout", func(topic string, payload []byte) error {
		fmt.Printf("%s %s %s\n", time.Now().Format(time.RFC3339Nano), topic, payload)
		return nil
	})

	rt, err := canarybridge.NewRuntime(cfg, canarybridge.WithPublisher(stdout))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
